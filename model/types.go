// Package model holds the data types shared by the directory service,
// cloud workers, the stego codec, and the P2P transport.
package model

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// MaxUsernameLen is the byte-length ceiling for a username, per the
// wire protocol's u16 length prefix and the data model's own bound.
const MaxUsernameLen = 64

// RequestStatus is the lifecycle state of a PendingRequest.
type RequestStatus uint8

const (
	StatusPending RequestStatus = iota
	StatusAccepted
	StatusRejected
)

func (s RequestStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ImageID is a 16-byte content-addressed fingerprint. See Fingerprint.
type ImageID [16]byte

func (id ImageID) String() string {
	const hex = "0123456789abcdef"
	buf := make([]byte, 32)
	for i, b := range id {
		buf[i*2] = hex[b>>4]
		buf[i*2+1] = hex[b&0xf]
	}
	return string(buf)
}

// MarshalText renders the hex form used by String, letting ImageID
// serve as a JSON object key (encoding/json requires TextMarshaler
// for non-string, non-integer map key types).
func (id ImageID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses the hex form produced by MarshalText.
func (id *ImageID) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("model: invalid ImageID %q: %w", text, err)
	}
	if len(decoded) != len(id) {
		return fmt.Errorf("model: invalid ImageID length %q", text)
	}
	copy(id[:], decoded)
	return nil
}

// User is the directory's record of a registered peer.
//
// Address and OnlineFlag live here rather than in a connection object;
// the transport's connection table is the single source of liveness
// (see transport.ConnTable), so User only ever stores values.
type User struct {
	Username      string
	Addr          string // "ip:port"
	Online        bool
	LastHeartbeat time.Time
	SharedImages  map[ImageID]struct{}
}

// Clone returns a deep copy so callers holding a User from a snapshot
// never observe mutation through the directory's state machine.
func (u User) Clone() User {
	images := make(map[ImageID]struct{}, len(u.SharedImages))
	for id := range u.SharedImages {
		images[id] = struct{}{}
	}
	u.SharedImages = images
	return u
}

// PermissionRecord is the owner/viewer/quota tuple embedded in a
// carrier image by the stego codec.
type PermissionRecord struct {
	Owner           string
	Viewer          string
	QuotaRemaining  uint32
	IssuedAtUnixMs  uint64
}

// PendingRequest is a peer-to-peer image request queued in the
// recipient's directory-side inbox until fetched.
type PendingRequest struct {
	RequestID       [16]byte // UUID bytes
	FromUser        string
	ToUser          string
	ImageID         ImageID
	RequestedViews  uint32
	Status          RequestStatus
	Timestamp       time.Time
}

// PendingPermissionUpdate is queued for a target user who is offline
// when the owner posts a permission change.
type PendingPermissionUpdate struct {
	FromOwner      string
	TargetUser     string
	ImageID        ImageID
	NewQuota       uint32
	IssuedAtUnixMs uint64
}

// DedupKey returns the tuple that detects duplicate delivery of the
// same permission update, per spec.md's at-most-once invariant.
func (u PendingPermissionUpdate) DedupKey() [3]string {
	return [3]string{u.FromOwner, u.ImageID.String(), strconv.FormatUint(u.IssuedAtUnixMs, 10)}
}
