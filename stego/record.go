package stego

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
)

// magic identifies an embedded record, "P2P!" per spec.md §4.3.
var magic = [4]byte{0x50, 0x32, 0x50, 0x21}

// maxRecordLen bounds the length field read from an untrusted carrier
// so a corrupt or hostile image can't drive an unbounded allocation.
const maxRecordLen = 4096

// serializeBody encodes a PermissionRecord's fields in declared order:
// owner, viewer (u16-length-prefixed UTF-8), quota_remaining (u32),
// issued_at (u64), all big-endian.
func serializeBody(r model.PermissionRecord) ([]byte, error) {
	if len(r.Owner) > model.MaxUsernameLen || len(r.Viewer) > model.MaxUsernameLen {
		return nil, fmt.Errorf("stego: username exceeds %d bytes", model.MaxUsernameLen)
	}
	buf := make([]byte, 0, 2+len(r.Owner)+2+len(r.Viewer)+4+8)
	buf = appendU16String(buf, r.Owner)
	buf = appendU16String(buf, r.Viewer)
	buf = binary.BigEndian.AppendUint32(buf, r.QuotaRemaining)
	buf = binary.BigEndian.AppendUint64(buf, r.IssuedAtUnixMs)
	return buf, nil
}

func appendU16String(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func deserializeBody(body []byte) (model.PermissionRecord, error) {
	var r model.PermissionRecord
	owner, rest, err := readU16String(body)
	if err != nil {
		return r, err
	}
	viewer, rest, err := readU16String(rest)
	if err != nil {
		return r, err
	}
	if len(rest) < 12 {
		return r, ErrCorrupt
	}
	r.Owner = owner
	r.Viewer = viewer
	r.QuotaRemaining = binary.BigEndian.Uint32(rest[0:4])
	r.IssuedAtUnixMs = binary.BigEndian.Uint64(rest[4:12])
	return r, nil
}

func readU16String(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint16(buf))
	if len(buf) < 2+n {
		return "", nil, ErrCorrupt
	}
	return string(buf[2 : 2+n]), buf[2+n:], nil
}

// frame builds the on-wire payload: magic, length, body, crc32(length+body).
func frame(r model.PermissionRecord) ([]byte, error) {
	body, err := serializeBody(r)
	if err != nil {
		return nil, err
	}
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(body)))

	crcInput := make([]byte, 0, 4+len(body))
	crcInput = append(crcInput, lenBuf...)
	crcInput = append(crcInput, body...)
	sum := crc32.ChecksumIEEE(crcInput)

	out := make([]byte, 0, 4+len(crcInput)+4)
	out = append(out, magic[:]...)
	out = append(out, crcInput...)
	out = binary.BigEndian.AppendUint32(out, sum)
	return out, nil
}

// unframe reverses frame, validating magic, length bound, and CRC.
func unframe(data []byte) (model.PermissionRecord, error) {
	var r model.PermissionRecord
	if len(data) < 12 {
		return r, ErrNotEncrypted
	}
	if [4]byte(data[0:4]) != magic {
		return r, ErrNotEncrypted
	}
	n := binary.BigEndian.Uint32(data[4:8])
	if n > maxRecordLen {
		return r, ErrCorrupt
	}
	if uint32(len(data)) < 8+n+4 {
		return r, ErrCorrupt
	}
	body := data[8 : 8+n]
	wantCRC := binary.BigEndian.Uint32(data[8+n : 8+n+4])
	gotCRC := crc32.ChecksumIEEE(data[4 : 8+n])
	if wantCRC != gotCRC {
		return r, ErrCorrupt
	}
	return deserializeBody(body)
}
