package ocr

import (
	"math"

	"github.com/GriffinCanCode/vidscribe/internal/media"
)

// Binarize converts a frame to black and white using Otsu's threshold on its
// luminance.
func Binarize(f *media.Frame) (media.Frame, error) {
	if err := f.Validate(); err != nil {
		return media.Frame{}, err
	}
	luma := f.Luma()
	gray := make([]uint8, len(luma))
	for i, l := range luma {
		gray[i] = uint8(math.Round(l))
	}
	t := otsu(gray)

	out := *f
	out.Data = make([]byte, len(f.Data))
	for i, g := range gray {
		if g > t {
			j := i * media.Channels
			out.Data[j], out.Data[j+1], out.Data[j+2] = 255, 255, 255
		}
	}
	return out, nil
}

// otsu returns the threshold maximising between-class variance.
func otsu(gray []uint8) uint8 {
	var hist [256]float64
	for _, g := range gray {
		hist[g]++
	}
	total := float64(len(gray))
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i) * c
	}

	var best uint8
	bestVar := -1.0
	var wBack, sumBack float64
	for t := 0; t < 256; t++ {
		wBack += hist[t]
		if wBack == 0 {
			continue
		}
		wFore := total - wBack
		if wFore == 0 {
			break
		}
		sumBack += float64(t) * hist[t]
		mBack := sumBack / wBack
		mFore := (sumAll - sumBack) / wFore
		v := wBack * wFore * (mBack - mFore) * (mBack - mFore)
		if v > bestVar {
			bestVar = v
			best = uint8(t)
		}
	}
	return best
}
