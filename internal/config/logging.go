package config

import (
	"io"
	"log/slog"
	"os"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds the slog logger described by l, writing to w and, when
// File is set, appending to that file as well.
func (l Logging) NewLogger(w io.Writer) (*slog.Logger, io.Closer, error) {
	var closer io.Closer = nopCloser{}
	if l.File != "" {
		f, err := os.OpenFile(l.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, apperrors.Wrapf(err, apperrors.ConfigInvalid, "open log file %s", l.File).WithMetadata("key", "logging.file")
		}
		w = io.MultiWriter(w, f)
		closer = f
	}
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if l.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h), closer, nil
}
