package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func blankCarrierPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestEncryptLocallyEmbedsAndFingerprints(t *testing.T) {
	req := encryptRequest{
		Owner:          "alice",
		Viewer:         "bob",
		RequestedQuota: 3,
		CarrierPNG:     blankCarrierPNG(t, 64, 64),
	}
	resp := encryptLocally(req)
	if resp.Status != jobOK {
		t.Fatalf("want jobOK, got %v", resp.Status)
	}
	if len(resp.CarrierPNG) == 0 {
		t.Fatal("expected non-empty embedded carrier")
	}
	var zero [16]byte
	if resp.ImageID == zero {
		t.Fatal("expected non-zero image id")
	}
}

func TestEncryptLocallyRejectsTinyCarrier(t *testing.T) {
	req := encryptRequest{
		Owner:          "alice",
		Viewer:         "bob",
		RequestedQuota: 3,
		CarrierPNG:     blankCarrierPNG(t, 2, 2),
	}
	resp := encryptLocally(req)
	if resp.Status != jobCarrierTooSmall {
		t.Fatalf("want jobCarrierTooSmall, got %v", resp.Status)
	}
}

func TestJobFrameRoundTrip(t *testing.T) {
	req := encryptRequest{Owner: "alice", Viewer: "bob", RequestedQuota: 2, CarrierPNG: []byte{1, 2, 3}}
	payload, err := encodeEncryptRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeEncryptRequest(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Owner != req.Owner || got.Viewer != req.Viewer || got.RequestedQuota != req.RequestedQuota || !bytes.Equal(got.CarrierPNG, req.CarrierPNG) {
		t.Errorf("round trip mismatch: %+v vs %+v", got, req)
	}
}

func TestAssignPeerIDsSkipsSelf(t *testing.T) {
	got := assignPeerIDs(1, []string{"a:9000", "b:9000"})
	if got[0] != "a:9000" || got[2] != "b:9000" {
		t.Errorf("unexpected mapping: %+v", got)
	}
}
