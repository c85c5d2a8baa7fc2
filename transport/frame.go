package transport

import (
	"fmt"
	"io"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/common"
)

// WriteFrame writes one opcode-tagged peer protocol message.
func WriteFrame(w io.Writer, op Opcode, payload []byte) error {
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(op)
	copy(buf[1:], payload)
	return common.WriteFrame(w, buf)
}

// ReadFrame reads one opcode-tagged peer protocol message.
func ReadFrame(r io.Reader) (Opcode, []byte, error) {
	buf, err := common.ReadFrame(r, MaxFrameLen)
	if err != nil {
		return 0, nil, err
	}
	if len(buf) == 0 {
		return 0, nil, fmt.Errorf("transport: empty frame")
	}
	return Opcode(buf[0]), buf[1:], nil
}
