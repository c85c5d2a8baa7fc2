package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
)

// writer accumulates a wire-format payload: big-endian integers,
// u16-length-prefixed UTF-8 strings.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) byte(b byte) { w.buf.WriteByte(b) }

func (w *writer) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) raw(b []byte) { w.buf.Write(b) }

func (w *writer) str(s string) error {
	if len(s) > model.MaxUsernameLen {
		return fmt.Errorf("wire: string of %d bytes exceeds %d byte limit", len(s), model.MaxUsernameLen)
	}
	w.u16(uint16(len(s)))
	w.buf.WriteString(s)
	return nil
}

func (w *writer) imageID(id model.ImageID) { w.buf.Write(id[:]) }

func (w *writer) bytes() []byte { return w.buf.Bytes() }

// reader consumes a wire-format payload written by writer.
type reader struct {
	buf *bytes.Reader
}

func newReader(data []byte) *reader { return &reader{buf: bytes.NewReader(data)} }

func (r *reader) byte() (byte, error) { return r.buf.ReadByte() }

func (r *reader) u16() (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r.buf, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func (r *reader) u32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.buf, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (r *reader) u64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r.buf, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (r *reader) fixed(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r.buf, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *reader) str() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}
	if int(n) > model.MaxUsernameLen {
		return "", fmt.Errorf("wire: string length %d exceeds %d byte limit", n, model.MaxUsernameLen)
	}
	b, err := r.fixed(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) imageID() (model.ImageID, error) {
	var id model.ImageID
	b, err := r.fixed(len(id))
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}
