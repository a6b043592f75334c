package pipeline

// Progress reported at the start of each stage.
const (
	ProgressStart    = 0
	ProgressPrepare  = 10
	ProgressImages   = 30
	ProgressText     = 60
	ProgressDocument = 80
	ProgressCleanup  = 90
	ProgressDone     = 100
)

// Work directories created under the output root.
const (
	imagesDir    = "images"
	textsDir     = "texts"
	documentsDir = "documents"
)

// Event log sizing.
const (
	DefaultMaxEvents   = 200
	DefaultEventBuffer = 64
)
