package raftlog

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// SnapshotFile is the on-disk shape of state.json: the node's Raft
// metadata plus an opaque, state-machine-owned StateMachine blob.
type SnapshotFile struct {
	Term           uint64          `json:"term"`
	VotedFor       int             `json:"voted_for"`
	LastAppliedIdx uint64          `json:"last_applied_idx"`
	StateMachine   json.RawMessage `json:"state_machine"`
}

// SaveSnapshot writes snap to path using rename-over-temp: the new
// content lands at path+".tmp", is fsynced, then atomically renamed
// into place, and finally the containing directory is fsynced so the
// rename itself survives a crash. A failure here is a fatal
// persistence error (spec.md §7): callers should exit with code 3.
func SaveSnapshot(path string, snap SnapshotFile) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "raftlog: marshaling snapshot")
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "raftlog: creating temp snapshot %s", tmp)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(err, "raftlog: writing temp snapshot")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "raftlog: fsyncing temp snapshot")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "raftlog: closing temp snapshot")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "raftlog: renaming %s to %s", tmp, path)
	}

	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return errors.Wrap(err, "raftlog: opening snapshot directory")
	}
	defer dir.Close()
	return errors.Wrap(dir.Sync(), "raftlog: fsyncing snapshot directory")
}

// LoadSnapshot reads path, returning (zero value, nil) if the file
// does not yet exist — a brand-new node has no snapshot to load.
func LoadSnapshot(path string) (SnapshotFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SnapshotFile{VotedFor: -1}, nil
		}
		return SnapshotFile{}, errors.Wrapf(err, "raftlog: reading snapshot %s", path)
	}
	var snap SnapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return SnapshotFile{}, errors.Wrapf(err, "raftlog: parsing snapshot %s", path)
	}
	return snap, nil
}
