package document

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
	"github.com/GriffinCanCode/vidscribe/internal/media"
	"github.com/GriffinCanCode/vidscribe/internal/trace"
)

const (
	emuPerInch  = 914400
	imageWidth  = 6 * emuPerInch
	titleHalfPt = 32 // 16pt
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Default Extension="png" ContentType="image/png"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const packageRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const documentOpen = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
	`xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing" ` +
	`xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" ` +
	`xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture"><w:body>`

const documentClose = `<w:sectPr><w:pgSz w:w="12240" w:h="15840"/>` +
	`<w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="720" w:footer="720" w:gutter="0"/>` +
	`</w:sectPr></w:body></w:document>`

// DocxWriter writes a WordprocessingML document: a centred bold title, every
// image six inches wide, then every non-blank text as its own paragraph.
type DocxWriter struct {
	Dir string
}

// NewDocxWriter writes into dir.
func NewDocxWriter(dir string) *DocxWriter { return &DocxWriter{Dir: dir} }

// Assemble implements Assembler.
func (w *DocxWriter) Assemble(ctx context.Context, c Content) (string, error) {
	log := trace.Logger(ctx)
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", apperrors.Wrap(err, apperrors.DocumentWriteFailed, "create document dir")
	}
	path := filepath.Join(w.Dir, fileName(c.title(), ".docx"))

	f, err := os.Create(path)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.DocumentWriteFailed, "create docx")
	}
	if err := w.write(ctx, f, c); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", apperrors.Wrap(err, apperrors.DocumentWriteFailed, "close docx")
	}
	log.Info("document written", "path", path, "images", len(c.Images), "texts", len(c.Texts))
	return path, nil
}

func (w *DocxWriter) write(ctx context.Context, out io.Writer, c Content) error {
	log := trace.Logger(ctx)
	zw := zip.NewWriter(out)

	var body strings.Builder
	body.WriteString(documentOpen)
	body.WriteString(titleParagraph(c.title()))
	body.WriteString(emptyParagraph)

	var rels []string
	for _, frame := range c.Images {
		if err := ctx.Err(); err != nil {
			return err
		}
		png, err := media.EncodePNG(&frame)
		if err != nil {
			log.Error("skipping image", "frame", frame.Index, "error", err)
			continue
		}
		n := len(rels) + 1
		name := fmt.Sprintf("media/image%d.png", n)
		if err := writePart(zw, "word/"+name, png); err != nil {
			return err
		}
		id := fmt.Sprintf("rId%d", n)
		rels = append(rels, fmt.Sprintf(`<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="%s"/>`, id, name))
		body.WriteString(imageParagraph(id, n, frame.Width, frame.Height))
		body.WriteString(emptyParagraph)
	}
	for _, text := range c.Texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		body.WriteString(textParagraph(text))
		body.WriteString(emptyParagraph)
	}
	body.WriteString(documentClose)

	docRels := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		strings.Join(rels, "") + `</Relationships>`

	parts := []struct {
		name string
		data string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", packageRelsXML},
		{"word/document.xml", body.String()},
		{"word/_rels/document.xml.rels", docRels},
	}
	for _, p := range parts {
		if err := writePart(zw, p.name, []byte(p.data)); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.DocumentWriteFailed, "finish docx archive")
	}
	return nil
}

func writePart(zw *zip.Writer, name string, data []byte) error {
	pw, err := zw.Create(name)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.DocumentWriteFailed, "create part %s", name)
	}
	if _, err := pw.Write(data); err != nil {
		return apperrors.Wrapf(err, apperrors.DocumentWriteFailed, "write part %s", name)
	}
	return nil
}

const emptyParagraph = `<w:p/>`

func titleParagraph(title string) string {
	return fmt.Sprintf(`<w:p><w:pPr><w:jc w:val="center"/></w:pPr><w:r><w:rPr><w:b/><w:sz w:val="%d"/></w:rPr>%s</w:r></w:p>`,
		titleHalfPt, runText(title))
}

// textParagraph keeps line breaks inside a snippet as w:br.
func textParagraph(text string) string {
	var b strings.Builder
	b.WriteString(`<w:p><w:r>`)
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString(`<w:br/>`)
		}
		b.WriteString(runText(line))
	}
	b.WriteString(`</w:r></w:p>`)
	return b.String()
}

func imageParagraph(relID string, n, width, height int) string {
	cx := imageWidth
	cy := imageWidth * height / max(width, 1)
	return fmt.Sprintf(`<w:p><w:r><w:drawing><wp:inline distT="0" distB="0" distL="0" distR="0">`+
		`<wp:extent cx="%[1]d" cy="%[2]d"/><wp:docPr id="%[3]d" name="Picture %[3]d"/>`+
		`<a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:pic><pic:nvPicPr><pic:cNvPr id="%[3]d" name="image%[3]d.png"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip r:embed="%[4]s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%[1]d" cy="%[2]d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`,
		cx, cy, n, relID)
}

func runText(s string) string {
	var b strings.Builder
	b.WriteString(`<w:t xml:space="preserve">`)
	_ = xml.EscapeText(&b, []byte(s))
	b.WriteString(`</w:t>`)
	return b.String()
}
