// Package media defines the raster frame passed between the frame source,
// the deduplication engine, OCR and the document assembler.
package media

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"time"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
)

// Channels per pixel in Frame.Data.
const Channels = 3

// Frame is a decoded video frame.
type Frame struct {
	// Index is the position of the frame in the sampled sequence
	Index int
	// Timestamp is the offset of the frame from the start of the video
	Timestamp time.Duration
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Data holds row-major RGB24 pixels, Width*Height*3 bytes
	Data []byte
}

// Validate reports whether the frame has non-empty bounds and a payload of the
// right size.
func (f *Frame) Validate() error {
	if f == nil {
		return apperrors.New(apperrors.FrameInvalid, "nil frame")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return apperrors.Newf(apperrors.FrameInvalid, "frame %d has empty bounds %dx%d", f.Index, f.Width, f.Height)
	}
	if want := f.Width * f.Height * Channels; len(f.Data) != want {
		return apperrors.Newf(apperrors.FrameInvalid, "frame %d payload is %d bytes, want %d", f.Index, len(f.Data), want)
	}
	return nil
}

// Image copies the frame into an *image.RGBA. The frame itself is not touched.
func (f *Frame) Image() (*image.RGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i < len(f.Data); i, j = i+Channels, j+4 {
		img.Pix[j] = f.Data[i]
		img.Pix[j+1] = f.Data[i+1]
		img.Pix[j+2] = f.Data[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

// At returns the RGB value at (x, y). The caller must stay within bounds.
func (f *Frame) At(x, y int) (r, g, b uint8) {
	i := (y*f.Width + x) * Channels
	return f.Data[i], f.Data[i+1], f.Data[i+2]
}

// Luma returns the ITU-R 601 luminance of every pixel in row-major order.
func (f *Frame) Luma() []float64 {
	out := make([]float64, f.Width*f.Height)
	for i := range out {
		p := f.Data[i*Channels:]
		out[i] = 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
	}
	return out
}

// FromImage converts any image into an RGB24 frame. Alpha is discarded.
func FromImage(img image.Image, index int, ts time.Duration) Frame {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	w, h := b.Dx(), b.Dy()
	data := make([]byte, w*h*Channels)
	for i, j := 0, 0; i < len(data); i, j = i+Channels, j+4 {
		data[i] = rgba.Pix[j]
		data[i+1] = rgba.Pix[j+1]
		data[i+2] = rgba.Pix[j+2]
	}
	return Frame{Index: index, Timestamp: ts, Width: w, Height: h, Data: data}
}

// Solid builds a frame filled with one color.
func Solid(w, h int, c color.RGBA) Frame {
	data := make([]byte, w*h*Channels)
	for i := 0; i < len(data); i += Channels {
		data[i], data[i+1], data[i+2] = c.R, c.G, c.B
	}
	return Frame{Width: w, Height: h, Data: data}
}

// EncodePNG encodes the frame as PNG.
func EncodePNG(f *Frame) ([]byte, error) {
	img, err := f.Image()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "encode png")
	}
	return buf.Bytes(), nil
}
