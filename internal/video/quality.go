package video

import (
	"context"
	"math"

	"github.com/GriffinCanCode/vidscribe/internal/media"
	"github.com/GriffinCanCode/vidscribe/internal/trace"
)

// Quality scores frame sharpness in [0,1] as the variance of the 4-neighbour
// Laplacian of its 8-bit luminance, divided by 1000 and capped at 1. Borders
// are mirrored without repeating the edge pixel.
func Quality(f *media.Frame) float64 {
	if f.Validate() != nil {
		return 0
	}
	w, h := f.Width, f.Height
	gray := make([]float64, w*h)
	for i, l := range f.Luma() {
		gray[i] = math.Round(l)
	}
	at := func(x, y int) float64 {
		return gray[reflect101(y, h)*w+reflect101(x, w)]
	}

	var sum, sumSq float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			sum += v
			sumSq += v * v
		}
	}
	n := float64(w * h)
	mean := sum / n
	variance := sumSq/n - mean*mean
	return math.Min(1, math.Max(0, variance)/qualityScale)
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}

// FilterQuality keeps frames whose Quality is above minQuality, preserving order.
func FilterQuality(ctx context.Context, frames []media.Frame, minQuality float64) []media.Frame {
	out := frames[:0:0]
	for i := range frames {
		if Quality(&frames[i]) > minQuality {
			out = append(out, frames[i])
		}
	}
	if dropped := len(frames) - len(out); dropped > 0 {
		trace.Logger(ctx).Info("dropped low quality frames", "dropped", dropped, "kept", len(out), "min_quality", minQuality)
	}
	return out
}
