// Package dedup decides whether incoming frames and text snippets are
// materially new relative to everything already accepted.
//
// Each Deduplicator keeps one bounded FIFO cache per content kind. A candidate
// is compared with every cached entry, oldest first; if any comparison meets
// the similarity threshold it is a duplicate and is dropped, otherwise it is
// inserted. Comparisons that fail are treated as "not similar" so a broken
// item is kept rather than lost.
package dedup

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
	"github.com/GriffinCanCode/vidscribe/internal/media"
	"github.com/GriffinCanCode/vidscribe/internal/metrics"
)

const (
	kindImage = "image"
	kindText  = "text"
)

// Config configures a Deduplicator.
type Config struct {
	// SimilarityThreshold in [0,1]; a score at or above it is a duplicate
	SimilarityThreshold float64
	// CacheSize bounds each per-kind cache
	CacheSize int
	// Workers sizes the fingerprint pool; <= 0 means runtime.NumCPU()
	Workers int
	// ImageHash selects the fingerprint used as the image cache key
	ImageHash Kind
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: DefaultSimilarityThreshold,
		CacheSize:           DefaultCacheSize,
		ImageHash:           KindContent,
	}
}

// Validate checks the threshold and cache size.
func (c Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return apperrors.Newf(apperrors.ConfigInvalid, "similarity threshold %v outside [0,1]", c.SimilarityThreshold)
	}
	if c.CacheSize <= 0 {
		return apperrors.Newf(apperrors.ConfigInvalid, "cache size %d must be positive", c.CacheSize)
	}
	switch c.ImageHash {
	case 0, KindContent, KindPerceptual:
	default:
		return apperrors.Newf(apperrors.ConfigInvalid, "unknown image hash kind %d", c.ImageHash)
	}
	return nil
}

// Verdict is the outcome of a single-item decision.
type Verdict int

const (
	Unique Verdict = iota
	Duplicate
)

func (v Verdict) String() string {
	if v == Duplicate {
		return "duplicate"
	}
	return "unique"
}

// Decision records how one item was judged.
type Decision struct {
	// Position of the item in the batch (0 for single-item calls)
	Position int
	Verdict  Verdict
	// Similarity is the highest score seen against the cache
	Similarity float64
	// Key is the fingerprint the image cache is keyed on
	Key Fingerprint
	// Perceptual is the frame's DCT hash regardless of the key in use
	Perceptual Fingerprint
	// PerceptualDistance to the closest cached frame, -1 if none was compared
	PerceptualDistance int
	// Err is set when the item could not be fingerprinted; it was kept
	Err error
}

type imagePrint struct {
	content    Fingerprint
	perceptual Fingerprint
	err        error
}

type imageRecord struct {
	frame      media.Frame
	perceptual Fingerprint
}

type textRecord struct {
	text  string
	terms terms
}

// Deduplicator owns two caches and a fingerprint worker pool.
type Deduplicator struct {
	cfg Config
	log *slog.Logger

	// mu serialises decide-and-insert across callers
	mu     sync.Mutex
	images *Cache[Fingerprint, imageRecord]
	texts  *Cache[uint64, textRecord]
	pool   *pool

	// testHookDecide runs before each batch decision when set
	testHookDecide func(pos int)
}

// New validates cfg and starts the worker pool.
func New(cfg Config) (*Deduplicator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ImageHash == 0 {
		cfg.ImageHash = KindContent
	}
	d := &Deduplicator{
		cfg:    cfg,
		log:    slog.Default().With("component", "dedup"),
		images: NewCache[Fingerprint, imageRecord](cfg.CacheSize),
		texts:  NewCache[uint64, textRecord](cfg.CacheSize),
		pool:   newPool(cfg.Workers),
	}
	d.log.Debug("deduplicator started",
		"threshold", cfg.SimilarityThreshold, "cache_size", cfg.CacheSize,
		"workers", cfg.Workers, "image_hash", cfg.ImageHash)
	return d, nil
}

// Config returns the effective configuration.
func (d *Deduplicator) Config() Config { return d.cfg }

// Close stops the worker pool and clears both caches. Batch calls made after
// Close return their input unchanged.
func (d *Deduplicator) Close() {
	d.pool.close()
	d.mu.Lock()
	d.images.Clear()
	d.texts.Clear()
	d.mu.Unlock()
	metrics.DedupCacheEntries.WithLabelValues(kindImage).Set(0)
	metrics.DedupCacheEntries.WithLabelValues(kindText).Set(0)
}

// Stats reports the current cache sizes.
type Stats struct {
	Images int
	Texts  int
}

// Stats returns the number of cached images and texts.
func (d *Deduplicator) Stats() Stats {
	return Stats{Images: d.images.Len(), Texts: d.texts.Len()}
}

// IsDuplicateImage reports whether frame matches a cached frame. A unique
// frame is inserted into the cache.
func (d *Deduplicator) IsDuplicateImage(frame media.Frame) bool {
	p := fingerprintImage(&frame)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.decideImage(0, frame, p).Verdict == Duplicate
}

// IsDuplicateText reports whether text matches a cached snippet. A unique
// snippet is inserted into the cache.
func (d *Deduplicator) IsDuplicateText(text string) bool {
	t := analyze(text)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.decideText(0, text, t).Verdict == Duplicate
}

// DecideImages fingerprints frames on the pool, then judges them one at a
// time in input order.
func (d *Deduplicator) DecideImages(frames []media.Frame) (decisions []Decision, err error) {
	prints := make([]imagePrint, len(frames))
	if err := d.pool.mapIndexed(len(frames), func(i int) {
		prints[i] = fingerprintImage(&frames[i])
	}); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	snapshot := d.images.Entries()
	defer d.recoverDecide(&err, func() {
		d.images.Reset(snapshot)
		metrics.DedupCacheEntries.WithLabelValues(kindImage).Set(float64(d.images.Len()))
	})

	decisions = make([]Decision, len(frames))
	for i := range frames {
		if d.testHookDecide != nil {
			d.testHookDecide(i)
		}
		decisions[i] = d.decideImage(i, frames[i], prints[i])
	}
	return decisions, nil
}

// DecideTexts analyses texts on the pool, then judges them one at a time in
// input order.
func (d *Deduplicator) DecideTexts(texts []string) (decisions []Decision, err error) {
	analysed := make([]terms, len(texts))
	if err := d.pool.mapIndexed(len(texts), func(i int) {
		analysed[i] = analyze(texts[i])
	}); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	snapshot := d.texts.Entries()
	defer d.recoverDecide(&err, func() {
		d.texts.Reset(snapshot)
		metrics.DedupCacheEntries.WithLabelValues(kindText).Set(float64(d.texts.Len()))
	})

	decisions = make([]Decision, len(texts))
	for i := range texts {
		if d.testHookDecide != nil {
			d.testHookDecide(i)
		}
		decisions[i] = d.decideText(i, texts[i], analysed[i])
	}
	return decisions, nil
}

// DeduplicateImages returns the unique frames in input order. On any batch
// failure the input is returned unchanged.
func (d *Deduplicator) DeduplicateImages(frames []media.Frame) []media.Frame {
	decisions, err := d.DecideImages(frames)
	if err != nil {
		d.log.Error("image batch dedup failed, returning input unfiltered", "count", len(frames), "error", err)
		metrics.DedupBatchFallbacks.WithLabelValues(kindImage).Inc()
		return frames
	}
	out := make([]media.Frame, 0, len(frames))
	for i, dec := range decisions {
		if dec.Verdict == Unique {
			out = append(out, frames[i])
		}
	}
	d.log.Info("images deduplicated", "input", len(frames), "unique", len(out))
	return out
}

// DeduplicateTexts returns the unique snippets in input order. On any batch
// failure the input is returned unchanged.
func (d *Deduplicator) DeduplicateTexts(texts []string) []string {
	decisions, err := d.DecideTexts(texts)
	if err != nil {
		d.log.Error("text batch dedup failed, returning input unfiltered", "count", len(texts), "error", err)
		metrics.DedupBatchFallbacks.WithLabelValues(kindText).Inc()
		return texts
	}
	out := make([]string, 0, len(texts))
	for i, dec := range decisions {
		if dec.Verdict == Unique {
			out = append(out, texts[i])
		}
	}
	d.log.Info("texts deduplicated", "input", len(texts), "unique", len(out))
	return out
}

// recoverDecide turns a panic in the decide step into *err and rolls the
// cache back to its state before the batch.
func (d *Deduplicator) recoverDecide(err *error, rollback func()) {
	if r := recover(); r != nil {
		rollback()
		*err = apperrors.Newf(apperrors.Internal, "dedup decide step: panic: %v", r)
	}
}

func fingerprintImage(frame *media.Frame) imagePrint {
	content, err := ContentHash(frame)
	if err != nil {
		return imagePrint{err: err}
	}
	perceptual, err := PerceptualHash(frame)
	if err != nil {
		return imagePrint{err: err}
	}
	return imagePrint{content: content, perceptual: perceptual}
}

// decideImage scans the image cache and inserts the frame if it is unique.
// Caller holds d.mu.
func (d *Deduplicator) decideImage(pos int, frame media.Frame, p imagePrint) Decision {
	dec := Decision{Position: pos, Perceptual: p.perceptual, PerceptualDistance: -1, Err: p.err}
	if p.err != nil {
		d.log.Warn("image fingerprint failed, keeping frame", "frame", frame.Index, "error", p.err)
		metrics.DedupFailOpen.WithLabelValues(kindImage).Inc()
		d.record(kindImage, Unique)
		return dec
	}

	dec.Key = p.content
	if d.cfg.ImageHash == KindPerceptual {
		dec.Key = p.perceptual
	}

	d.images.Range(func(key Fingerprint, rec imageRecord) bool {
		if dist, err := p.perceptual.imageHash().Distance(rec.perceptual.imageHash()); err == nil {
			if dec.PerceptualDistance < 0 || dist < dec.PerceptualDistance {
				dec.PerceptualDistance = dist
			}
		}
		s := ImageSimilarity(dec.Key, key)
		if s.Err != nil {
			d.log.Warn("image comparison failed", "frame", frame.Index, "error", s.Err)
			metrics.DedupFailOpen.WithLabelValues(kindImage).Inc()
			return true
		}
		if s.Value > dec.Similarity {
			dec.Similarity = s.Value
		}
		if s.Duplicate(d.cfg.SimilarityThreshold) {
			dec.Verdict = Duplicate
			return false
		}
		return true
	})

	if dec.Verdict == Unique {
		d.images.Insert(dec.Key, imageRecord{frame: frame, perceptual: p.perceptual})
		metrics.DedupCacheEntries.WithLabelValues(kindImage).Set(float64(d.images.Len()))
		if dec.PerceptualDistance >= 0 {
			metrics.DedupPHashDistance.Observe(float64(dec.PerceptualDistance))
		}
	}
	d.log.Debug("image decision", "frame", frame.Index, "verdict", dec.Verdict,
		"similarity", dec.Similarity, "key", dec.Key.String(), "phash_distance", dec.PerceptualDistance)
	d.record(kindImage, dec.Verdict)
	return dec
}

// decideText scans the text cache and inserts the snippet if it is unique.
// Caller holds d.mu.
func (d *Deduplicator) decideText(pos int, text string, t terms) Decision {
	dec := Decision{Position: pos, PerceptualDistance: -1}
	failures := 0
	var lastErr error

	d.texts.Range(func(_ uint64, rec textRecord) bool {
		s := pairSimilarity(t, rec.terms)
		if s.Err != nil {
			failures++
			lastErr = s.Err
			return true
		}
		if s.Value > dec.Similarity {
			dec.Similarity = s.Value
		}
		if s.Duplicate(d.cfg.SimilarityThreshold) {
			dec.Verdict = Duplicate
			return false
		}
		return true
	})

	if failures > 0 {
		d.log.Warn("text comparison failed, treating as not similar",
			"position", pos, "failures", failures, "error", lastErr)
		metrics.DedupFailOpen.WithLabelValues(kindText).Add(float64(failures))
	}
	if dec.Verdict == Unique {
		d.texts.Insert(TextKey(text), textRecord{text: text, terms: t})
		metrics.DedupCacheEntries.WithLabelValues(kindText).Set(float64(d.texts.Len()))
	}
	d.log.Debug("text decision", "position", pos, "verdict", dec.Verdict, "similarity", dec.Similarity)
	d.record(kindText, dec.Verdict)
	return dec
}

func (d *Deduplicator) record(kind string, v Verdict) {
	metrics.DedupItems.WithLabelValues(kind, v.String()).Inc()
}

// String summarises the deduplicator for logs.
func (d *Deduplicator) String() string {
	s := d.Stats()
	return fmt.Sprintf("dedup(threshold=%.2f, images=%d/%d, texts=%d/%d)",
		d.cfg.SimilarityThreshold, s.Images, d.cfg.CacheSize, s.Texts, d.cfg.CacheSize)
}
