package model

import "golang.org/x/crypto/blake2b"

// Fingerprint derives a 16-byte content-addressed ImageID from the
// original pixel bytes plus the owner username. The fingerprint is
// stable across re-encryption because callers must pass the pixel
// bytes as they existed before any stego embedding — pixel LSBs
// carrying a permission record are excluded from the hash input by
// convention of when this function is called, not by masking bits
// here (see stego.CarrierFingerprint for the masked variant used at
// encryption time).
func Fingerprint(pixels []byte, owner string) ImageID {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// blake2b.New only errors on an out-of-range size or an
		// oversized key; 16 bytes and a nil key are always valid.
		panic(err)
	}
	h.Write([]byte(owner))
	h.Write([]byte{0}) // separator so "ab"+"c" and "a"+"bc" don't collide
	h.Write(pixels)
	var id ImageID
	copy(id[:], h.Sum(nil))
	return id
}
