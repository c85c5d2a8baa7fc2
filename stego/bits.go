package stego

import "image"

// capacity returns the number of RGB channel bytes available.
func capacity(img *image.NRGBA) int {
	b := img.Bounds()
	return b.Dx() * b.Dy() * 3
}

// walkChannels calls fn once per RGB channel byte in iteration order —
// top-to-bottom rows, left-to-right within a row, R then G then B
// (alpha skipped), per spec.md §4.3 — passing a pointer into img.Pix
// so fn can read or mutate it in place. Iteration stops early if fn
// returns false.
func walkChannels(img *image.NRGBA, fn func(b *byte) bool) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			off := img.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				if !fn(&img.Pix[off+c]) {
					return
				}
			}
		}
	}
}

// embedBits writes payload into the carrier's channel LSBs, one bit
// per channel byte, LSB-first within each payload byte.
func embedBits(img *image.NRGBA, payload []byte) error {
	needed := len(payload) * 8
	if needed > capacity(img) {
		return ErrCarrierTooSmall
	}
	byteIdx, bitIdx := 0, 0
	walkChannels(img, func(b *byte) bool {
		if byteIdx >= len(payload) {
			return false
		}
		bit := (payload[byteIdx] >> uint(bitIdx)) & 1
		*b = (*b &^ 1) | bit
		bitIdx++
		if bitIdx == 8 {
			bitIdx = 0
			byteIdx++
		}
		return true
	})
	return nil
}

// extractBits reads n bytes back out of the carrier's channel LSBs.
func extractBits(img *image.NRGBA, n int) ([]byte, error) {
	if n*8 > capacity(img) {
		return nil, ErrCorrupt
	}
	out := make([]byte, n)
	byteIdx, bitIdx := 0, 0
	walkChannels(img, func(b *byte) bool {
		if byteIdx >= n {
			return false
		}
		out[byteIdx] |= (*b & 1) << uint(bitIdx)
		bitIdx++
		if bitIdx == 8 {
			bitIdx = 0
			byteIdx++
		}
		return true
	})
	if byteIdx < n {
		return nil, ErrCorrupt
	}
	return out, nil
}
