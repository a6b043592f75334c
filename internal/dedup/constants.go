package dedup

const (
	// DefaultSimilarityThreshold is used when Config.SimilarityThreshold is unset.
	DefaultSimilarityThreshold = 0.95
	// DefaultCacheSize bounds each per-kind cache when Config.CacheSize is unset.
	DefaultCacheSize = 1000

	// HashBits is the width of every image fingerprint.
	HashBits = 64

	gridSize       = 8  // side of the hash grid
	perceptualSize = 32 // side of the DCT input
	// smoothing term of the pairwise idf (two documents per fit)
	pairDocs = 2
)
