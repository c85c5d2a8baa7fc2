package stego

import (
	"image"
	"testing"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
)

func blankCarrier(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	return img
}

func TestEmbedExtractRoundTrip(t *testing.T) {
	carrier := blankCarrier(64, 64)
	rec := model.PermissionRecord{
		Owner:          "alice",
		Viewer:         "bob",
		QuotaRemaining: 3,
		IssuedAtUnixMs: 1_700_000_000_000,
	}
	if _, err := Embed(carrier, rec); err != nil {
		t.Fatalf("embed: %v", err)
	}
	got, err := Extract(carrier)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != rec {
		t.Errorf("round trip mismatch: want %+v got %+v", rec, got)
	}
}

func TestExtractOnPlainCarrierIsNotEncrypted(t *testing.T) {
	carrier := blankCarrier(32, 32)
	if _, err := Extract(carrier); err != ErrNotEncrypted {
		t.Errorf("want ErrNotEncrypted, got %v", err)
	}
}

func TestCarrierTooSmall(t *testing.T) {
	carrier := blankCarrier(2, 2) // 12 channel bytes, nowhere near enough
	rec := model.PermissionRecord{Owner: "a", Viewer: "b", QuotaRemaining: 1}
	if _, err := Embed(carrier, rec); err != ErrCarrierTooSmall {
		t.Errorf("want ErrCarrierTooSmall, got %v", err)
	}
}

func TestDecrementNonOwnerReducesQuota(t *testing.T) {
	carrier := blankCarrier(64, 64)
	rec := model.PermissionRecord{Owner: "alice", Viewer: "bob", QuotaRemaining: 2, IssuedAtUnixMs: 1}
	if _, err := Embed(carrier, rec); err != nil {
		t.Fatalf("embed: %v", err)
	}
	_, updated, err := Decrement(carrier, "bob")
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if updated.QuotaRemaining != 1 {
		t.Errorf("want quota 1 after first decrement, got %d", updated.QuotaRemaining)
	}
	_, updated, err = Decrement(carrier, "bob")
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if updated.QuotaRemaining != 0 {
		t.Errorf("want quota 0 after second decrement, got %d", updated.QuotaRemaining)
	}
	if _, _, err = Decrement(carrier, "bob"); err != ErrAccessDenied {
		t.Errorf("want ErrAccessDenied at exhausted quota, got %v", err)
	}
}

func TestDecrementOwnerViewLeavesCarrierUntouched(t *testing.T) {
	carrier := blankCarrier(64, 64)
	rec := model.PermissionRecord{Owner: "alice", Viewer: "bob", QuotaRemaining: 1, IssuedAtUnixMs: 1}
	if _, err := Embed(carrier, rec); err != nil {
		t.Fatalf("embed: %v", err)
	}
	_, updated, err := Decrement(carrier, "alice")
	if err != nil {
		t.Fatalf("owner decrement: %v", err)
	}
	if updated.QuotaRemaining != 1 {
		t.Errorf("owner view must not decrement quota, got %d", updated.QuotaRemaining)
	}
}

func TestUpdateQuotaRejectsStaleIssuedAt(t *testing.T) {
	carrier := blankCarrier(64, 64)
	rec := model.PermissionRecord{Owner: "alice", Viewer: "bob", QuotaRemaining: 1, IssuedAtUnixMs: 100}
	if _, err := Embed(carrier, rec); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if _, err := UpdateQuota(carrier, 5, 100); err != ErrStaleUpdate {
		t.Errorf("equal issued_at must be rejected as stale, got %v", err)
	}
	if _, err := UpdateQuota(carrier, 5, 50); err != ErrStaleUpdate {
		t.Errorf("earlier issued_at must be rejected as stale, got %v", err)
	}
	if _, err := UpdateQuota(carrier, 5, 200); err != nil {
		t.Fatalf("strictly greater issued_at should be accepted: %v", err)
	}
	got, err := Extract(carrier)
	if err != nil {
		t.Fatalf("extract after update: %v", err)
	}
	if got.QuotaRemaining != 5 || got.IssuedAtUnixMs != 200 {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestCarrierFingerprintStableAcrossReembed(t *testing.T) {
	carrier := blankCarrier(64, 64)
	before := CarrierFingerprint(carrier, "alice")
	rec := model.PermissionRecord{Owner: "alice", Viewer: "bob", QuotaRemaining: 3, IssuedAtUnixMs: 1}
	if _, err := Embed(carrier, rec); err != nil {
		t.Fatalf("embed: %v", err)
	}
	after := CarrierFingerprint(carrier, "alice")
	if before != after {
		t.Errorf("fingerprint changed after embedding: %v -> %v", before, after)
	}
}
