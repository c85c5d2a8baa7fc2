// Package common holds the small cross-cutting pieces every binary in
// this module needs: framed I/O, socket tuning, logging setup, and the
// backoff schedule used by every retrying dialer.
package common

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
)

// maxJSONFrame bounds the internal (non-wire-protocol) JSON messages
// exchanged between cluster peers, e.g. worker health beacons. It is
// far below the peer transport's 64MiB image frame limit because
// these frames only ever carry small control payloads.
const maxJSONFrame = 1 << 20 // 1 MiB

// Send writes v as a length-prefixed JSON frame. Used for the
// internal, non-wire-protocol control channels (worker health
// polls, raft cluster RPCs) where a self-describing envelope is
// more convenient than a fixed binary layout.
func Send(conn net.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))
	if _, err = conn.Write(length); err != nil {
		return err
	}

	_, err = conn.Write(data)
	return err
}

// Recv reads a length-prefixed JSON frame written by Send.
func Recv(conn net.Conn, v any) error {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(conn, lenBuf); err != nil {
		return err
	}

	n := binary.BigEndian.Uint32(lenBuf)
	if n > maxJSONFrame {
		return fmt.Errorf("common: frame of %d bytes exceeds %d byte control-channel limit", n, maxJSONFrame)
	}
	data := make([]byte, n)

	if _, err := io.ReadFull(conn, data); err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}

// ReadFrame reads a raw length-prefixed frame (4-byte big-endian
// length, then payload) up to maxLen bytes. Used by the wire and
// transport packages, which own their own binary layouts.
func ReadFrame(r io.Reader, maxLen uint32) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf)
	if n > maxLen {
		return nil, fmt.Errorf("common: frame of %d bytes exceeds %d byte limit", n, maxLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteFrame writes payload as a raw length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(payload)))
	if _, err := w.Write(length); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// TuneSocket sets the 1 MiB send/receive buffers spec.md §4.4 requires
// for peer transport connections. Non-TCP connections (e.g. in-memory
// pipes used by tests) are left untouched.
func TuneSocket(conn net.Conn) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tcp.SetReadBuffer(1 << 20)
	_ = tcp.SetWriteBuffer(1 << 20)
}
