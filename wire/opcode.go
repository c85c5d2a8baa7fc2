// Package wire implements the directory wire protocol described in
// spec.md §6: a 1-byte opcode followed by op-specific fields, all
// integers big-endian, all strings u16-length-prefixed UTF-8, framed
// with a 4-byte big-endian length prefix (common.ReadFrame/WriteFrame).
package wire

// Opcode identifies a directory client request.
type Opcode byte

const (
	OpRegister             Opcode = 0x01
	OpUnregister           Opcode = 0x02
	OpHeartbeat            Opcode = 0x03
	OpDiscoverPeers        Opcode = 0x04
	OpLeaveRequest         Opcode = 0x05
	OpFetchInbox           Opcode = 0x06
	OpRespond              Opcode = 0x07
	OpPostPermissionUpdate Opcode = 0x08

	// OpShareImage is not part of spec.md §6's client opcode set: it is
	// how a cloud worker tells the directory a freshly embedded image
	// belongs in its owner's shared manifest, so DiscoverPeers' image
	// lists reflect reality. Same framing, same server, different caller.
	OpShareImage Opcode = 0x09
)

// Status is the outcome code carried in every directory response.
type Status byte

const (
	StatusOK        Status = 0
	StatusNotLeader Status = 1
	StatusNotFound  Status = 2
	StatusConflict  Status = 3
	StatusInvalid   Status = 4
	StatusBusy      Status = 5
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotLeader:
		return "NotLeader"
	case StatusNotFound:
		return "NotFound"
	case StatusConflict:
		return "Conflict"
	case StatusInvalid:
		return "Invalid"
	case StatusBusy:
		return "ServerBusy"
	default:
		return "Unknown"
	}
}

// MaxFrameLen bounds a directory protocol frame. Directory frames only
// ever carry usernames, addresses, and small manifests, nowhere near
// the peer transport's 64MiB image ceiling.
const MaxFrameLen = 1 << 16
