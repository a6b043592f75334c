package ocr

import (
	"github.com/GriffinCanCode/vidscribe/internal/config"
	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
)

// closer is implemented by backends that hold resources.
type closer interface {
	Close() error
}

// Open builds the Service selected by cfg. release frees the backend and is
// never nil.
func Open(cfg config.OCR) (svc *Service, release func() error, err error) {
	var backend Extractor
	release = func() error { return nil }

	switch cfg.Backend {
	case "grpc":
		c, err := NewGRPCClient(cfg.Addr, GRPCOptions{
			Timeout: cfg.Timeout,
			Rate:    cfg.Rate,
			Burst:   cfg.Burst,
		})
		if err != nil {
			return nil, nil, err
		}
		backend = c
	case "tesseract":
		t, err := NewTesseract(cfg.Languages, cfg.Workers)
		if err != nil {
			return nil, nil, err
		}
		backend = t
	case "none", "":
		backend = Nop{}
	default:
		return nil, nil, apperrors.Newf(apperrors.ConfigInvalid, "unknown ocr backend %q", cfg.Backend).WithMetadata("key", "ocr.backend")
	}
	if c, ok := backend.(closer); ok {
		release = c.Close
	}

	opts := []Option{WithPreprocess(cfg.Preprocess)}
	if len(cfg.Languages) > 0 {
		opts = append(opts, WithLanguageCheck(NewLanguageChecker(cfg.Languages)))
	}
	return NewService(backend, opts...), release, nil
}

// Health describes the backend for health checks.
func (s *Service) Health() map[string]string {
	h := map[string]string{"ocr": s.backend.Name()}
	if c, ok := s.backend.(*GRPCClient); ok {
		h["ocr_breaker"] = c.Breaker().State().String()
	}
	return h
}
