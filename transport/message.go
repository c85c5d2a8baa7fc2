package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
)

// ThumbnailRequest asks a peer for a downsampled preview of one of
// its shared images.
type ThumbnailRequest struct {
	ImageID model.ImageID
}

// ThumbnailResponse carries the thumbnail bytes exactly as the
// Thumbnail handler returned them; the codec does not compress them
// (CompressPayload/DecompressPayload in thumbnail.go are separate
// helpers).
type ThumbnailResponse struct {
	JPEGBytes []byte
}

// ImageRequest asks the owning peer to grant access to an image.
type ImageRequest struct {
	From           string
	ImageID        model.ImageID
	RequestedViews uint32
}

// ImageAck acknowledges an ImageRequest was queued; the owner
// responds out of band once they act on it.
type ImageAck struct {
	RequestID [16]byte
}

// PermissionPush notifies an online viewer directly of a new or
// updated permission record, without waiting for a heartbeat poll.
type PermissionPush struct {
	Record model.PermissionRecord
}

// PermissionAck confirms a PermissionPush was received.
type PermissionAck struct {
	OK bool
}

func writeU16String(w *bytes.Buffer, s string) error {
	if len(s) > model.MaxUsernameLen {
		return fmt.Errorf("transport: string of %d bytes exceeds %d byte limit", len(s), model.MaxUsernameLen)
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	w.Write(lenBuf[:])
	w.WriteString(s)
	return nil
}

func readU16String(r *bytes.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// EncodeThumbnailRequest and its siblings serialize a message body
// (the frame's opcode byte is prepended by WriteFrame).

func EncodeThumbnailRequest(m ThumbnailRequest) []byte { return m.ImageID[:] }

func DecodeThumbnailRequest(payload []byte) (ThumbnailRequest, error) {
	var m ThumbnailRequest
	if len(payload) != len(m.ImageID) {
		return m, fmt.Errorf("transport: bad ThumbnailRequest length %d", len(payload))
	}
	copy(m.ImageID[:], payload)
	return m, nil
}

func EncodeThumbnailResponse(m ThumbnailResponse) []byte { return m.JPEGBytes }

func DecodeThumbnailResponse(payload []byte) (ThumbnailResponse, error) {
	return ThumbnailResponse{JPEGBytes: payload}, nil
}

func EncodeImageRequest(m ImageRequest) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeU16String(&buf, m.From); err != nil {
		return nil, err
	}
	buf.Write(m.ImageID[:])
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], m.RequestedViews)
	buf.Write(v[:])
	return buf.Bytes(), nil
}

func DecodeImageRequest(payload []byte) (ImageRequest, error) {
	var m ImageRequest
	r := bytes.NewReader(payload)
	from, err := readU16String(r)
	if err != nil {
		return m, err
	}
	m.From = from
	if _, err := io.ReadFull(r, m.ImageID[:]); err != nil {
		return m, err
	}
	var v [4]byte
	if _, err := io.ReadFull(r, v[:]); err != nil {
		return m, err
	}
	m.RequestedViews = binary.BigEndian.Uint32(v[:])
	return m, nil
}

func EncodeImageAck(m ImageAck) []byte { return m.RequestID[:] }

func DecodeImageAck(payload []byte) (ImageAck, error) {
	var m ImageAck
	if len(payload) != len(m.RequestID) {
		return m, fmt.Errorf("transport: bad ImageAck length %d", len(payload))
	}
	copy(m.RequestID[:], payload)
	return m, nil
}

func EncodePermissionPush(m PermissionPush) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeU16String(&buf, m.Record.Owner); err != nil {
		return nil, err
	}
	if err := writeU16String(&buf, m.Record.Viewer); err != nil {
		return nil, err
	}
	var q [4]byte
	binary.BigEndian.PutUint32(q[:], m.Record.QuotaRemaining)
	buf.Write(q[:])
	var t [8]byte
	binary.BigEndian.PutUint64(t[:], m.Record.IssuedAtUnixMs)
	buf.Write(t[:])
	return buf.Bytes(), nil
}

func DecodePermissionPush(payload []byte) (PermissionPush, error) {
	var m PermissionPush
	r := bytes.NewReader(payload)
	owner, err := readU16String(r)
	if err != nil {
		return m, err
	}
	viewer, err := readU16String(r)
	if err != nil {
		return m, err
	}
	var q [4]byte
	if _, err := io.ReadFull(r, q[:]); err != nil {
		return m, err
	}
	var t [8]byte
	if _, err := io.ReadFull(r, t[:]); err != nil {
		return m, err
	}
	m.Record = model.PermissionRecord{
		Owner:          owner,
		Viewer:         viewer,
		QuotaRemaining: binary.BigEndian.Uint32(q[:]),
		IssuedAtUnixMs: binary.BigEndian.Uint64(t[:]),
	}
	return m, nil
}

func EncodePermissionAck(m PermissionAck) []byte {
	if m.OK {
		return []byte{1}
	}
	return []byte{0}
}

func DecodePermissionAck(payload []byte) (PermissionAck, error) {
	if len(payload) != 1 {
		return PermissionAck{}, fmt.Errorf("transport: bad PermissionAck length %d", len(payload))
	}
	return PermissionAck{OK: payload[0] != 0}, nil
}
