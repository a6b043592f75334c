package dedup

import (
	"fmt"
	"hash/fnv"

	"github.com/corona10/goimagehash"
	"github.com/corona10/goimagehash/etcs"
	"github.com/corona10/goimagehash/transforms"
	"github.com/nfnt/resize"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
	"github.com/GriffinCanCode/vidscribe/internal/media"
)

// Kind identifies the algorithm behind a Fingerprint.
type Kind int

const (
	// KindContent is the 8x8 mean hash.
	KindContent Kind = iota + 1
	// KindPerceptual is the 32x32 DCT hash.
	KindPerceptual
)

func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindPerceptual:
		return "perceptual"
	default:
		return "unknown"
	}
}

// ParseKind maps a config value onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "content":
		return KindContent, nil
	case "perceptual":
		return KindPerceptual, nil
	}
	return 0, apperrors.Newf(apperrors.ConfigInvalid, "unknown image hash %q", s)
}

// Fingerprint is a fixed-width image hash. Bit 0 of the rendered bitstring is
// the most significant bit of Bits and corresponds to the top-left cell.
type Fingerprint struct {
	Kind Kind
	Bits uint64
}

// String renders the fingerprint as a 64 character bitstring.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%0*b", HashBits, f.Bits)
}

func (f Fingerprint) imageHash() *goimagehash.ImageHash {
	kind := goimagehash.AHash
	if f.Kind == KindPerceptual {
		kind = goimagehash.PHash
	}
	return goimagehash.NewImageHash(f.Bits, kind)
}

// ContentHash computes the 8x8 mean hash of a frame: the frame is scaled to
// 8x8, reduced to luminance, and bit i is set when cell i is brighter than
// the mean.
func ContentHash(frame *media.Frame) (Fingerprint, error) {
	img, err := frame.Image()
	if err != nil {
		return Fingerprint{}, err
	}
	h, err := goimagehash.AverageHash(img)
	if err != nil {
		return Fingerprint{}, apperrors.Wrap(err, apperrors.FrameInvalid, "content hash")
	}
	return Fingerprint{Kind: KindContent, Bits: h.GetHash()}, nil
}

// PerceptualHash computes the DCT hash of a frame: 32x32 luminance, 2-D DCT-II,
// then the top-left 8x8 block of coefficients thresholded against its mean.
func PerceptualHash(frame *media.Frame) (Fingerprint, error) {
	img, err := frame.Image()
	if err != nil {
		return Fingerprint{}, err
	}
	resized := resize.Resize(perceptualSize, perceptualSize, img, resize.Bilinear)
	pixels := transforms.Rgb2Gray(resized)
	dct := transforms.DCT2D(pixels, perceptualSize, perceptualSize)
	block := transforms.FlattenPixels(dct, gridSize, gridSize)
	mean := etcs.MeanOfPixels(block)

	var bits uint64
	for i, c := range block {
		if c > mean {
			bits |= 1 << uint(len(block)-i-1)
		}
	}
	return Fingerprint{Kind: KindPerceptual, Bits: bits}, nil
}

// TextKey returns the cache key for a text snippet.
func TextKey(text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(text))
	return h.Sum64()
}
