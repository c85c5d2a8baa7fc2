package wire

import (
	"fmt"
	"io"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/common"
)

// WriteMessage frames opcode+payload as one length-prefixed wire
// frame: [4B length][1B opcode][payload].
func WriteMessage(w io.Writer, op Opcode, payload []byte) error {
	framed := make([]byte, 0, 1+len(payload))
	framed = append(framed, byte(op))
	framed = append(framed, payload...)
	return common.WriteFrame(w, framed)
}

// ReadMessage reads one frame and splits it into its opcode and
// payload.
func ReadMessage(r io.Reader) (Opcode, []byte, error) {
	frame, err := common.ReadFrame(r, MaxFrameLen)
	if err != nil {
		return 0, nil, err
	}
	if len(frame) < 1 {
		return 0, nil, fmt.Errorf("wire: empty frame, missing opcode")
	}
	return Opcode(frame[0]), frame[1:], nil
}
