//go:build tesseract

package ocr

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
	"github.com/GriffinCanCode/vidscribe/internal/media"
)

// Tesseract runs OCR in-process through libtesseract. A gosseract client is
// not safe for concurrent use, so a fixed set of clients is handed out over a
// channel and closed with the backend.
type Tesseract struct {
	languages []string
	clients   chan *gosseract.Client
	all       []*gosseract.Client
	closeOnce sync.Once
}

// NewTesseract creates a backend with workers clients for the given language
// packs, e.g. "eng", "kor". Every pack must be installed.
func NewTesseract(languages []string, workers int) (Extractor, error) {
	if workers <= 0 {
		workers = 1
	}
	t := &Tesseract{languages: tesseractLanguages(languages), clients: make(chan *gosseract.Client, workers)}
	if err := checkLanguages(t.languages); err != nil {
		return nil, err
	}
	for i := 0; i < workers; i++ {
		c := gosseract.NewClient()
		t.all = append(t.all, c)
		if len(t.languages) > 0 {
			if err := c.SetLanguage(t.languages...); err != nil {
				_ = t.Close()
				return nil, apperrors.Wrap(err, apperrors.OCRUnavailable, "tesseract set language")
			}
		}
		t.clients <- c
	}
	return t, nil
}

// checkLanguages fails when a requested pack is missing from tessdata.
func checkLanguages(packs []string) error {
	if len(packs) == 0 {
		return nil
	}
	installed, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return apperrors.Wrap(err, apperrors.OCRUnavailable, "list tesseract languages")
	}
	for _, p := range packs {
		if !slices.Contains(installed, p) {
			return apperrors.Newf(apperrors.OCRUnavailable, "tesseract language pack %q is not installed", p).
				WithMetadata("installed", strings.Join(installed, ","))
		}
	}
	return nil
}

// Name implements Extractor.
func (t *Tesseract) Name() string { return "tesseract" }

// Close releases every client.
func (t *Tesseract) Close() error {
	var errs []error
	t.closeOnce.Do(func() {
		for _, c := range t.all {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// ExtractText implements Extractor. It waits for a free client.
func (t *Tesseract) ExtractText(ctx context.Context, frame *media.Frame) (string, error) {
	img, err := media.EncodePNG(frame)
	if err != nil {
		return "", err
	}
	var c *gosseract.Client
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case c = <-t.clients:
	}
	defer func() { t.clients <- c }()

	if err := c.SetImageFromBytes(img); err != nil {
		return "", apperrors.Wrap(err, apperrors.OCRExtractFailed, "tesseract set image")
	}
	text, err := c.Text()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.OCRExtractFailed, "tesseract")
	}
	return strings.TrimSpace(text), nil
}

// tesseractLanguages maps ISO 639-1 codes onto tesseract pack names.
func tesseractLanguages(codes []string) []string {
	packs := map[string]string{"en": "eng", "ko": "kor", "ja": "jpn", "zh": "chi_sim", "de": "deu", "fr": "fra", "es": "spa"}
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if p, ok := packs[strings.ToLower(c)]; ok {
			out = append(out, p)
		} else {
			out = append(out, c)
		}
	}
	return out
}
