// Package stego implements the least-significant-bit steganographic
// codec: embedding, extracting, decrementing, and updating a
// permission record carried in a PNG's pixel data.
package stego

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"

	"golang.org/x/crypto/blake2b"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
)

// toNRGBA converts an arbitrary decoded image to NRGBA so bit
// twiddling always operates on a known, contiguous 4-byte layout.
func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok {
		return n
	}
	dst := image.NewNRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}

// DecodeCarrier reads a PNG carrier into the NRGBA form Embed/Extract
// operate on.
func DecodeCarrier(r *bytes.Reader) (*image.NRGBA, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, err
	}
	return toNRGBA(img), nil
}

// EncodeCarrier re-serializes a carrier back to PNG bytes.
func EncodeCarrier(img *image.NRGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Embed writes r into carrier's pixel LSBs and returns the re-encoded
// PNG bytes. carrier is mutated in place; callers that still need the
// original should pass a clone.
func Embed(carrier *image.NRGBA, r model.PermissionRecord) ([]byte, error) {
	payload, err := frame(r)
	if err != nil {
		return nil, err
	}
	if err := embedBits(carrier, payload); err != nil {
		return nil, err
	}
	return EncodeCarrier(carrier)
}

// Extract reads and validates the permission record embedded in
// carrier. It reads the fixed 8-byte magic+length header first, then
// exactly as many further bytes as the length field declares.
func Extract(carrier *image.NRGBA) (model.PermissionRecord, error) {
	header, err := extractBits(carrier, 8)
	if err != nil {
		return model.PermissionRecord{}, err
	}
	if [4]byte(header[0:4]) != magic {
		return model.PermissionRecord{}, ErrNotEncrypted
	}
	n := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
	if n > maxRecordLen || n < 0 {
		return model.PermissionRecord{}, ErrCorrupt
	}
	full, err := extractBits(carrier, 8+n+4)
	if err != nil {
		return model.PermissionRecord{}, err
	}
	return unframe(full)
}

// IsOwnerView reports whether viewer is the record's owner, in which
// case quota enforcement does not apply and the carrier must not be
// mutated.
func IsOwnerView(r model.PermissionRecord, viewer string) bool {
	return r.Owner == viewer
}

// Decrement extracts the embedded record, checks quota, and — if the
// caller is not the owner — decrements quota_remaining and re-embeds.
// Owner views leave the carrier untouched regardless of quota.
func Decrement(carrier *image.NRGBA, viewer string) ([]byte, model.PermissionRecord, error) {
	r, err := Extract(carrier)
	if err != nil {
		return nil, r, err
	}
	if IsOwnerView(r, viewer) {
		out, err := EncodeCarrier(carrier)
		return out, r, err
	}
	if r.QuotaRemaining == 0 {
		return nil, r, ErrAccessDenied
	}
	r.QuotaRemaining--
	out, err := Embed(carrier, r)
	return out, r, err
}

// UpdateQuota overwrites quota_remaining and issued_at from a fresh
// owner-issued update. The update is rejected unless newIssuedAt
// strictly exceeds the record's stored issued_at, per spec.md's
// quota-monotonicity invariant.
func UpdateQuota(carrier *image.NRGBA, newQuota uint32, newIssuedAt uint64) ([]byte, error) {
	r, err := Extract(carrier)
	if err != nil {
		return nil, err
	}
	if newIssuedAt <= r.IssuedAtUnixMs {
		return nil, ErrStaleUpdate
	}
	r.QuotaRemaining = newQuota
	r.IssuedAtUnixMs = newIssuedAt
	return Embed(carrier, r)
}

// CarrierFingerprint derives the content-addressed ImageID from a
// decoded carrier's pixel bytes, excluding LSBs so re-embedding never
// changes the identifier. It masks every channel byte's LSB before
// hashing, matching model.Fingerprint's owner+pixel-bytes scheme.
func CarrierFingerprint(carrier *image.NRGBA, owner string) model.ImageID {
	masked := make([]byte, 0, len(carrier.Pix))
	bounds := carrier.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			off := carrier.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				masked = append(masked, carrier.Pix[off+c]&^1)
			}
		}
	}
	h, err := blake2b.New(16, nil)
	if err != nil {
		panic(err)
	}
	h.Write([]byte(owner))
	h.Write([]byte{0})
	h.Write(masked)
	var id model.ImageID
	copy(id[:], h.Sum(nil))
	return id
}
