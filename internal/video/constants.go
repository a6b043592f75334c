package video

const (
	// DefaultFPS is the sampling rate when none is configured.
	DefaultFPS = 1.0
	// DefaultMinQuality drops frames at or below this sharpness.
	DefaultMinQuality = 0.1

	// variance of the Laplacian that maps to quality 1.0
	qualityScale = 1000.0

	framePattern = "frame_%05d.png"
)
