package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/common"
	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
)

// jobOpcode tags a frame on the encryption-job intake protocol. This
// is a small protocol private to cloudworker, distinct from both the
// directory wire protocol and the peer-to-peer transport protocol:
// spec.md §4.2 only specifies its contract ("stream the original
// bytes... await the encrypted result"), not a byte layout, so we
// give it the same length-prefixed-frame shape the rest of the module
// uses rather than inventing something bespoke.
type jobOpcode byte

const (
	// opEncryptRequest is a client's original job; the receiving
	// worker must elect a dispatcher target for it (which may be
	// itself) before doing any embedding.
	opEncryptRequest jobOpcode = 0x01
	// opEncryptResponse is the reply to either request opcode.
	opEncryptResponse jobOpcode = 0x02
	// opForwardedRequest is a job already elected by some dispatcher;
	// the receiving worker executes it directly, no re-election.
	opForwardedRequest jobOpcode = 0x03
)

// jobStatus mirrors the outcomes spec.md §4.2/§7 name for this path.
type jobStatus byte

const (
	jobOK                  jobStatus = 0
	jobCarrierTooSmall     jobStatus = 1
	jobServiceUnavailable  jobStatus = 2
	jobInvalid             jobStatus = 3
)

// maxJobFrame bounds an encryption job frame; images share the same
// ceiling as the peer transport's image frames.
const maxJobFrame = 64 << 20

type encryptRequest struct {
	Owner          string
	Viewer         string
	RequestedQuota uint32
	CarrierPNG     []byte
}

type encryptResponse struct {
	Status     jobStatus
	ImageID    model.ImageID
	CarrierPNG []byte
}

func writeJobFrame(w io.Writer, op jobOpcode, payload []byte) error {
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(op)
	copy(buf[1:], payload)
	return common.WriteFrame(w, buf)
}

func readJobFrame(r io.Reader) (jobOpcode, []byte, error) {
	buf, err := common.ReadFrame(r, maxJobFrame)
	if err != nil {
		return 0, nil, err
	}
	if len(buf) == 0 {
		return 0, nil, fmt.Errorf("cloudworker: empty job frame")
	}
	return jobOpcode(buf[0]), buf[1:], nil
}

func encodeU16String(buf *bytes.Buffer, s string) error {
	if len(s) > model.MaxUsernameLen {
		return fmt.Errorf("cloudworker: string of %d bytes exceeds %d byte limit", len(s), model.MaxUsernameLen)
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
	return nil
}

func decodeU16String(r *bytes.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeEncryptRequest(req encryptRequest) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeU16String(&buf, req.Owner); err != nil {
		return nil, err
	}
	if err := encodeU16String(&buf, req.Viewer); err != nil {
		return nil, err
	}
	var q [4]byte
	binary.BigEndian.PutUint32(q[:], req.RequestedQuota)
	buf.Write(q[:])
	buf.Write(req.CarrierPNG)
	return buf.Bytes(), nil
}

func decodeEncryptRequest(payload []byte) (encryptRequest, error) {
	var req encryptRequest
	r := bytes.NewReader(payload)
	owner, err := decodeU16String(r)
	if err != nil {
		return req, err
	}
	viewer, err := decodeU16String(r)
	if err != nil {
		return req, err
	}
	var q [4]byte
	if _, err := io.ReadFull(r, q[:]); err != nil {
		return req, err
	}
	rest := make([]byte, r.Len())
	if _, err := io.ReadFull(r, rest); err != nil {
		return req, err
	}
	req.Owner = owner
	req.Viewer = viewer
	req.RequestedQuota = binary.BigEndian.Uint32(q[:])
	req.CarrierPNG = rest
	return req, nil
}

func encodeEncryptResponse(resp encryptResponse) []byte {
	buf := make([]byte, 0, 1+16+len(resp.CarrierPNG))
	buf = append(buf, byte(resp.Status))
	buf = append(buf, resp.ImageID[:]...)
	buf = append(buf, resp.CarrierPNG...)
	return buf
}

func decodeEncryptResponse(payload []byte) (encryptResponse, error) {
	var resp encryptResponse
	if len(payload) < 1+16 {
		return resp, fmt.Errorf("cloudworker: short encrypt response")
	}
	resp.Status = jobStatus(payload[0])
	copy(resp.ImageID[:], payload[1:17])
	resp.CarrierPNG = payload[17:]
	return resp, nil
}
