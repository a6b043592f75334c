//go:build !tesseract

package ocr

import apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"

// NewTesseract reports that this binary was built without tesseract support.
// Build with -tags tesseract to enable it.
func NewTesseract([]string, int) (Extractor, error) {
	return nil, apperrors.New(apperrors.OCRUnavailable, "built without tesseract support (use -tags tesseract)")
}
