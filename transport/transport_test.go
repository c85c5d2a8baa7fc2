package transport

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"net"
	"testing"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
	"go.uber.org/zap"
)

func TestMessageFramingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := ImageRequest{From: "alice", ImageID: model.ImageID{1, 2, 3}, RequestedViews: 5}
	payload, err := EncodeImageRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := WriteFrame(&buf, OpImageRequest, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	op, gotPayload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if op != OpImageRequest {
		t.Fatalf("want OpImageRequest, got %#x", op)
	}
	got, err := DecodeImageRequest(gotPayload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != req {
		t.Errorf("want %+v got %+v", req, got)
	}
}

func TestPermissionPushRoundTrip(t *testing.T) {
	push := PermissionPush{Record: model.PermissionRecord{
		Owner: "bob", Viewer: "alice", QuotaRemaining: 3, IssuedAtUnixMs: 12345,
	}}
	payload, err := EncodePermissionPush(push)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodePermissionPush(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != push {
		t.Errorf("want %+v got %+v", push, got)
	}
}

func TestConnTableReplacesAndRemoves(t *testing.T) {
	table := NewConnTable()
	c1, c2 := &fakeConn{}, &fakeConn{}
	table.Put("alice", c1)
	if got, ok := table.Get("alice"); !ok || got != c1 {
		t.Fatal("expected c1 registered")
	}
	table.Put("alice", c2)
	if got, ok := table.Get("alice"); !ok || got != c2 {
		t.Fatal("expected c2 to replace c1")
	}
	table.Remove("alice", c1) // stale reference, should not remove c2
	if _, ok := table.Get("alice"); !ok {
		t.Fatal("stale Remove should not have dropped the live connection")
	}
	table.Remove("alice", c2)
	if _, ok := table.Get("alice"); ok {
		t.Fatal("expected alice removed")
	}
}

type fakeConn struct{ net.Conn }

func (c *fakeConn) Close() error { return nil }

func TestServerServesImageRequest(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	logger := zap.NewNop()
	srv := NewServer(Handlers{
		ImageRequest: func(ctx context.Context, req ImageRequest) (ImageAck, error) {
			return ImageAck{RequestID: [16]byte{9}}, nil
		},
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, ln)

	ack, err := RequestImage(context.Background(), ln.Addr().String(), ImageRequest{
		From: "alice", ImageID: model.ImageID{1}, RequestedViews: 1,
	})
	if err != nil {
		t.Fatalf("RequestImage: %v", err)
	}
	if ack.RequestID != ([16]byte{9}) {
		t.Errorf("unexpected ack: %+v", ack)
	}
}

func TestBuildThumbnailProducesJPEG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 512, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 512; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	jpegBytes, err := BuildThumbnail(img)
	if err != nil {
		t.Fatalf("BuildThumbnail: %v", err)
	}
	if len(jpegBytes) == 0 {
		t.Fatal("expected non-empty jpeg")
	}
	compressed := CompressPayload(jpegBytes)
	roundtrip, err := DecompressPayload(compressed)
	if err != nil {
		t.Fatalf("DecompressPayload: %v", err)
	}
	if !bytes.Equal(roundtrip, jpegBytes) {
		t.Error("snappy round trip mismatch")
	}
}
