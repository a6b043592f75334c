// Package ocr reads the text on a frame through a pluggable backend.
//
// Backends return errors; Service turns every failure into an empty snippet
// and a warning so a single unreadable frame never fails a job.
package ocr

import (
	"context"
	"strings"
	"time"

	"github.com/GriffinCanCode/vidscribe/internal/media"
	"github.com/GriffinCanCode/vidscribe/internal/metrics"
	"github.com/GriffinCanCode/vidscribe/internal/trace"
)

// Extractor is an OCR backend.
type Extractor interface {
	ExtractText(ctx context.Context, frame *media.Frame) (string, error)
	Name() string
}

// Nop is the backend used when OCR is disabled.
type Nop struct{}

func (Nop) ExtractText(context.Context, *media.Frame) (string, error) { return "", nil }
func (Nop) Name() string                                               { return "none" }

// Service runs frames through preprocessing, a backend and the language check.
type Service struct {
	backend    Extractor
	languages  *LanguageChecker
	preprocess bool
}

// Option configures a Service.
type Option func(*Service)

// WithPreprocess binarizes frames before OCR.
func WithPreprocess(on bool) Option { return func(s *Service) { s.preprocess = on } }

// WithLanguageCheck warns about snippets in unexpected languages.
func WithLanguageCheck(lc *LanguageChecker) Option { return func(s *Service) { s.languages = lc } }

// NewService wraps backend.
func NewService(backend Extractor, opts ...Option) *Service {
	s := &Service{backend: backend}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Backend returns the name of the wrapped backend.
func (s *Service) Backend() string { return s.backend.Name() }

// Text returns the trimmed text on frame, or "" if OCR fails.
func (s *Service) Text(ctx context.Context, frame media.Frame) string {
	log := trace.Logger(ctx)
	input := &frame
	if s.preprocess {
		if bin, err := Binarize(&frame); err == nil {
			input = &bin
		} else {
			log.Warn("preprocess failed, using raw frame", "frame", frame.Index, "error", err)
		}
	}

	start := time.Now()
	text, err := s.backend.ExtractText(ctx, input)
	metrics.OCRLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Warn("ocr failed, using empty text", "frame", frame.Index, "backend", s.backend.Name(), "error", err)
		metrics.OCRRequests.WithLabelValues(s.backend.Name(), "error").Inc()
		return ""
	}

	text = strings.TrimSpace(text)
	if text == "" {
		metrics.OCRRequests.WithLabelValues(s.backend.Name(), "empty").Inc()
		return ""
	}
	metrics.OCRRequests.WithLabelValues(s.backend.Name(), "ok").Inc()

	if s.languages != nil {
		if lang, ok := s.languages.Check(text); !ok {
			log.Warn("unsupported language detected", "frame", frame.Index, "language", lang)
		}
	}
	return text
}
