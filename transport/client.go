package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/common"
)

// Dial connects to a peer address, retrying transient failures per
// spec.md §7's backoff schedule.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	backoff := common.DefaultBackoff()
	var lastErr error
	for {
		d := net.Dialer{}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			common.TuneSocket(conn)
			return conn, nil
		}
		lastErr = err
		delay, retry := backoff.Next()
		if !retry {
			return nil, fmt.Errorf("transport: dialing %s: %w", addr, lastErr)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// RequestThumbnail dials addr and performs one ThumbnailRequest/Response
// round trip within OpDeadline.
func RequestThumbnail(ctx context.Context, addr string, req ThumbnailRequest) (ThumbnailResponse, error) {
	conn, err := Dial(ctx, addr)
	if err != nil {
		return ThumbnailResponse{}, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(OpDeadline))

	if err := WriteFrame(conn, OpThumbnailRequest, EncodeThumbnailRequest(req)); err != nil {
		return ThumbnailResponse{}, err
	}
	op, payload, err := ReadFrame(conn)
	if err != nil {
		return ThumbnailResponse{}, err
	}
	if op != OpThumbnailResponse {
		return ThumbnailResponse{}, fmt.Errorf("transport: expected ThumbnailResponse, got opcode %#x", op)
	}
	return DecodeThumbnailResponse(payload)
}

// RequestImage dials addr and sends an ImageRequest, returning the
// owner's ack; the actual grant is delivered later via PermissionPush
// or the directory's pending-request queue.
func RequestImage(ctx context.Context, addr string, req ImageRequest) (ImageAck, error) {
	conn, err := Dial(ctx, addr)
	if err != nil {
		return ImageAck{}, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(OpDeadline))

	payload, err := EncodeImageRequest(req)
	if err != nil {
		return ImageAck{}, err
	}
	if err := WriteFrame(conn, OpImageRequest, payload); err != nil {
		return ImageAck{}, err
	}
	op, respPayload, err := ReadFrame(conn)
	if err != nil {
		return ImageAck{}, err
	}
	if op != OpImageAck {
		return ImageAck{}, fmt.Errorf("transport: expected ImageAck, got opcode %#x", op)
	}
	return DecodeImageAck(respPayload)
}

// PushPermission dials addr and delivers a PermissionPush directly;
// callers fall back to the directory's queue on error, per spec.md
// §4.4's PermissionPush description.
func PushPermission(ctx context.Context, addr string, push PermissionPush) (PermissionAck, error) {
	conn, err := Dial(ctx, addr)
	if err != nil {
		return PermissionAck{}, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(OpDeadline))

	payload, err := EncodePermissionPush(push)
	if err != nil {
		return PermissionAck{}, err
	}
	if err := WriteFrame(conn, OpPermissionPush, payload); err != nil {
		return PermissionAck{}, err
	}
	op, respPayload, err := ReadFrame(conn)
	if err != nil {
		return PermissionAck{}, err
	}
	if op != OpPermissionAck {
		return PermissionAck{}, fmt.Errorf("transport: expected PermissionAck, got opcode %#x", op)
	}
	return DecodePermissionAck(respPayload)
}
