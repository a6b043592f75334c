package document

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
	"github.com/GriffinCanCode/vidscribe/internal/media"
	"github.com/GriffinCanCode/vidscribe/internal/trace"
)

// PDFWriter writes a slide deck with one unique frame per page. Texts are not
// rendered; use DocxWriter for those.
type PDFWriter struct {
	Dir string
}

// NewPDFWriter writes into dir.
func NewPDFWriter(dir string) *PDFWriter { return &PDFWriter{Dir: dir} }

// Assemble implements Assembler.
func (w *PDFWriter) Assemble(ctx context.Context, c Content) (string, error) {
	var imgs []io.Reader
	for _, frame := range c.Images {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		png, err := media.EncodePNG(&frame)
		if err != nil {
			trace.Logger(ctx).Error("skipping image", "frame", frame.Index, "error", err)
			continue
		}
		imgs = append(imgs, bytes.NewReader(png))
	}
	if len(imgs) == 0 {
		return "", apperrors.New(apperrors.DocumentWriteFailed, "no images for pdf")
	}

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", apperrors.Wrap(err, apperrors.DocumentWriteFailed, "create document dir")
	}
	path := filepath.Join(w.Dir, fileName(c.title(), ".pdf"))

	var buf bytes.Buffer
	conf := model.NewDefaultConfiguration()
	if err := api.ImportImages(nil, &buf, imgs, pdfcpu.DefaultImportConfig(), conf); err != nil {
		return "", apperrors.Wrap(err, apperrors.DocumentWriteFailed, "pdfcpu import images")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", apperrors.Wrap(err, apperrors.DocumentWriteFailed, "write pdf")
	}
	trace.Logger(ctx).Info("pdf written", "path", path, "pages", len(imgs))
	return path, nil
}
