package transport

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/golang/snappy"
	"github.com/nfnt/resize"
)

// ThumbnailMaxDim and ThumbnailQuality are spec.md §4.4's downsample
// parameters.
const (
	ThumbnailMaxDim   = 256
	ThumbnailQuality  = 60
	thumbnailBlurSigma = 8.0
)

// BuildThumbnail downsamples img to ThumbnailMaxDim on its longer
// side, applies the privacy blur, and JPEG-encodes at quality 60.
// The blur is not part of spec.md's own text but is carried forward
// from the system this spec was distilled from: a preview should not
// leak fine detail before a permission grant.
func BuildThumbnail(img image.Image) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var targetW, targetH uint
	if w >= h {
		targetW, targetH = ThumbnailMaxDim, 0
	} else {
		targetW, targetH = 0, ThumbnailMaxDim
	}
	small := resize.Resize(targetW, targetH, img, resize.Lanczos3)
	blurred := boxBlur(small, thumbnailBlurSigma)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, blurred, &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CompressPayload snappy-compresses a thumbnail's JPEG bytes for the
// wire, per spec.md §3's domain-stack wiring.
func CompressPayload(jpegBytes []byte) []byte {
	return snappy.Encode(nil, jpegBytes)
}

// DecompressPayload reverses CompressPayload.
func DecompressPayload(compressed []byte) ([]byte, error) {
	return snappy.Decode(nil, compressed)
}

// boxBlur approximates a Gaussian blur of the given sigma with three
// passes of a box filter, the standard cheap substitute (no Gaussian
// blur library appears anywhere in the retrieval pack, so this stays
// on draw/image primitives rather than reaching for one).
func boxBlur(img image.Image, sigma float64) *image.NRGBA {
	src := toNRGBA(img)
	radius := int(sigma*3*0.5 + 0.5)
	if radius < 1 {
		radius = 1
	}
	out := src
	for pass := 0; pass < 3; pass++ {
		out = boxBlurPass(out, radius)
	}
	return out
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

func boxBlurPass(src *image.NRGBA, radius int) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(b)
	horiz := image.NewNRGBA(b)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var rs, gs, bs, as, n int
			for dx := -radius; dx <= radius; dx++ {
				sx := x + dx
				if sx < b.Min.X || sx >= b.Max.X {
					continue
				}
				r, g, bl, a := src.At(sx, y).RGBA()
				rs += int(r >> 8)
				gs += int(g >> 8)
				bs += int(bl >> 8)
				as += int(a >> 8)
				n++
			}
			horiz.Set(x, y, avgColor(rs, gs, bs, as, n))
		}
	}

	for x := b.Min.X; x < b.Max.X; x++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			var rs, gs, bs, as, n int
			for dy := -radius; dy <= radius; dy++ {
				sy := y + dy
				if sy < b.Min.Y || sy >= b.Max.Y {
					continue
				}
				r, g, bl, a := horiz.At(x, sy).RGBA()
				rs += int(r >> 8)
				gs += int(g >> 8)
				bs += int(bl >> 8)
				as += int(a >> 8)
				n++
			}
			dst.Set(x, y, avgColor(rs, gs, bs, as, n))
		}
	}
	return dst
}

func avgColor(rs, gs, bs, as, n int) color.NRGBA {
	if n == 0 {
		return color.NRGBA{}
	}
	return color.NRGBA{
		R: uint8(rs / n),
		G: uint8(gs / n),
		B: uint8(bs / n),
		A: uint8(as / n),
	}
}
