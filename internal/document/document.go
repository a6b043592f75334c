// Package document assembles the unique frames and OCR snippets of a job
// into a deliverable file.
package document

import (
	"context"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/GriffinCanCode/vidscribe/internal/media"
)

// DefaultTitle is used when a job has no title.
const DefaultTitle = "Extracted Content"

// Content is what goes into a document. Images come first, then texts.
type Content struct {
	Title  string
	Images []media.Frame
	Texts  []string
}

// Assembler writes Content and returns the path of the written file.
type Assembler interface {
	Assemble(ctx context.Context, c Content) (string, error)
}

func (c Content) title() string {
	if t := strings.TrimSpace(c.Title); t != "" {
		return t
	}
	return DefaultTitle
}

// fileName derives a file name from the title, keeping letters, digits and a
// few separators.
func fileName(title, ext string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			return r
		case unicode.IsSpace(r):
			return '_'
		}
		return -1
	}, title)
	name = strings.Trim(name, "._")
	if name == "" {
		name = "output"
	}
	return filepath.Base(name) + ext
}
