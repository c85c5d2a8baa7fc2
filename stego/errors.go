package stego

import "errors"

var (
	// ErrCarrierTooSmall is returned at embed time when the carrier does
	// not have enough pixel channels to hold the framed record.
	ErrCarrierTooSmall = errors.New("stego: carrier too small for record")
	// ErrNotEncrypted is returned when the leading 32 bits of a carrier
	// don't decode to the magic value.
	ErrNotEncrypted = errors.New("stego: carrier has no embedded record")
	// ErrCorrupt is returned when the length field is out of bounds or
	// the trailing CRC-32 does not match.
	ErrCorrupt = errors.New("stego: embedded record is corrupt")
	// ErrAccessDenied is returned by Decrement when quota_remaining is
	// already 0. The carrier is left untouched.
	ErrAccessDenied = errors.New("stego: quota exhausted")
	// ErrStaleUpdate is returned by UpdateQuota when the incoming
	// issued_at does not strictly exceed the stored one.
	ErrStaleUpdate = errors.New("stego: stale permission update")
)
