// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Deduplication metrics
var (
	// Counts dedup decisions by content kind and verdict.
	DedupItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidscribe_dedup_items_total",
		Help: "Items seen by the deduplicator by kind (image, text) and verdict (unique, duplicate)",
	}, []string{"kind", "verdict"})

	// Counts batch calls that fell back to returning their input unchanged.
	DedupBatchFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidscribe_dedup_batch_fallbacks_total",
		Help: "Batch dedup calls that failed and returned the input unfiltered",
	}, []string{"kind"})

	DedupFailOpen = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidscribe_dedup_failopen_total",
		Help: "Comparisons or fingerprints that failed and were treated as not duplicate",
	}, []string{"kind"})

	DedupCacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vidscribe_dedup_cache_entries",
		Help: "Current number of entries in each dedup cache",
	}, []string{"kind"})

	// Hamming distance between the perceptual hash of an accepted frame and its
	// closest cached neighbour.
	DedupPHashDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vidscribe_dedup_image_phash_distance",
		Help:    "Perceptual hash distance to the nearest cached frame",
		Buckets: []float64{0, 1, 2, 4, 6, 8, 12, 16, 24, 32, 64},
	})
)

// OCR metrics
var (
	OCRRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidscribe_ocr_requests_total",
		Help: "OCR requests by backend and result (ok, error, empty)",
	}, []string{"backend", "result"})

	OCRLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vidscribe_ocr_latency_seconds",
		Help:    "Time taken by one OCR call",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

// Job metrics
var (
	Jobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidscribe_jobs_total",
		Help: "Finished jobs by status (done, failed, cancelled)",
	}, []string{"status"})

	JobStageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidscribe_job_stage_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"stage"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vidscribe_circuit_breaker_state",
		Help: "Current state of circuit breakers (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})
)
