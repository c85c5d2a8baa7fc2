// Package transport implements the peer-to-peer wire protocol
// (spec.md §4.4): length-prefixed framed TCP, a per-connection
// cooperative handler, and the peer connection table.
package transport

import "time"

// Opcode identifies a peer protocol message. Range 0x80-0x8F is
// reserved for peer operations per spec.md §6, distinct from the
// directory wire protocol's 0x01-0x09.
type Opcode byte

const (
	OpThumbnailRequest  Opcode = 0x80
	OpThumbnailResponse Opcode = 0x81
	OpImageRequest      Opcode = 0x82
	OpImageAck          Opcode = 0x83
	OpPermissionPush    Opcode = 0x84
	OpPermissionAck     Opcode = 0x85
)

// MaxFrameLen is the 64MiB image frame cap spec.md §4.4 mandates.
const MaxFrameLen = 64 << 20

// OpDeadline is the default per-operation cancellation deadline.
const OpDeadline = 30 * time.Second
