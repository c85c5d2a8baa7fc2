package raftlog

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// Log is the append-only on-disk replication log. Each record is
// [4B length][8B term][entry bytes][8B xxhash64 checksum], per
// SPEC_FULL.md §5. A record's index is its 1-based position in the
// file; it is never stored explicitly.
type Log struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	entries []LogEntry
}

// OpenLog opens (creating if absent) the log file at path and replays
// its contents into memory. If replay hits a checksum mismatch
// (ErrChecksumMismatch) or a read error, the file is closed and no
// Log is returned: the caller gets only the wrapped error and decides
// whether to exit fatally (spec.md §7's "Fatal persistence" path).
func OpenLog(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "raftlog: opening log file %s", path)
	}
	l := &Log{file: f, path: path}
	if err := l.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) replay() error {
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "raftlog: seeking to log start")
	}
	r := l.file
	var index uint64
	for {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			if err == io.EOF {
				break
			}
			return errors.Wrap(err, "raftlog: reading entry length")
		}
		n := binary.BigEndian.Uint32(lenBuf)

		termBuf := make([]byte, 8)
		if _, err := io.ReadFull(r, termBuf); err != nil {
			return errors.Wrap(err, "raftlog: reading entry term")
		}
		term := binary.BigEndian.Uint64(termBuf)

		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return errors.Wrap(err, "raftlog: reading entry body")
		}

		sumBuf := make([]byte, 8)
		if _, err := io.ReadFull(r, sumBuf); err != nil {
			return errors.Wrap(err, "raftlog: reading entry checksum")
		}
		wantSum := binary.BigEndian.Uint64(sumBuf)

		h := xxhash.New()
		h.Write(termBuf)
		h.Write(body)
		if h.Sum64() != wantSum {
			return errors.Wrapf(ErrChecksumMismatch, "raftlog: entry at index %d in %s", index+1, l.path)
		}

		index++
		l.entries = append(l.entries, LogEntry{Term: term, Index: index, Command: body})
	}
	return nil
}

// Append writes a new entry, fsyncs, and returns its assigned index.
func (l *Log) Append(term uint64, command []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	termBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(termBuf, term)

	h := xxhash.New()
	h.Write(termBuf)
	h.Write(command)
	sum := h.Sum64()

	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(command)))
	sumBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(sumBuf, sum)

	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return 0, errors.Wrap(err, "raftlog: seeking to log end")
	}
	for _, chunk := range [][]byte{lenBuf, termBuf, command, sumBuf} {
		if _, err := l.file.Write(chunk); err != nil {
			return 0, errors.Wrap(err, "raftlog: writing log entry")
		}
	}
	if err := l.file.Sync(); err != nil {
		return 0, errors.Wrap(err, "raftlog: fsyncing log entry")
	}

	index := uint64(len(l.entries)) + 1
	l.entries = append(l.entries, LogEntry{Term: term, Index: index, Command: command})
	return index, nil
}

// Truncate drops every entry with index > afterIndex, rewriting the
// file from scratch. Used on split-brain heal: a minority leader's
// uncommitted tail is overwritten with the majority's.
func (l *Log) Truncate(afterIndex uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if afterIndex >= uint64(len(l.entries)) {
		return nil
	}
	l.entries = l.entries[:afterIndex]

	if err := l.file.Truncate(0); err != nil {
		return errors.Wrap(err, "raftlog: truncating log file")
	}
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "raftlog: seeking to log start")
	}
	for _, e := range l.entries {
		termBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(termBuf, e.Term)
		h := xxhash.New()
		h.Write(termBuf)
		h.Write(e.Command)

		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(e.Command)))
		sumBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(sumBuf, h.Sum64())

		for _, chunk := range [][]byte{lenBuf, termBuf, e.Command, sumBuf} {
			if _, err := l.file.Write(chunk); err != nil {
				return errors.Wrap(err, "raftlog: rewriting log entry")
			}
		}
	}
	return errors.Wrap(l.file.Sync(), "raftlog: fsyncing truncated log")
}

// AppendReplicated appends entries received from a leader, starting
// at startIndex. Any locally held entries at or after startIndex are
// discarded first (they conflict with the leader's log by definition
// of being replaced).
func (l *Log) AppendReplicated(startIndex uint64, entries []LogEntry) error {
	if startIndex <= uint64(len(l.entries)) {
		if err := l.Truncate(startIndex - 1); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if _, err := l.Append(e.Term, e.Command); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns a copy of every entry with index >= from.
func (l *Log) Entries(from uint64) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if from == 0 {
		from = 1
	}
	if from > uint64(len(l.entries)) {
		return nil
	}
	out := make([]LogEntry, len(l.entries)-int(from)+1)
	copy(out, l.entries[from-1:])
	return out
}

// At returns the entry at index, or the zero entry if out of range.
func (l *Log) At(index uint64) (LogEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index == 0 || index > uint64(len(l.entries)) {
		return LogEntry{}, false
	}
	return l.entries[index-1], true
}

// LastIndexTerm returns the index and term of the last log entry, or
// (0, 0) for an empty log.
func (l *Log) LastIndexTerm() (uint64, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return 0, 0
	}
	last := l.entries[len(l.entries)-1]
	return last.Index, last.Term
}

// Len returns the number of entries currently held.
func (l *Log) Len() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.entries))
}

// Close closes the underlying file.
func (l *Log) Close() error {
	return l.file.Close()
}
