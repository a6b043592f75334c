// Package video turns a video file, or a directory of already extracted
// images, into an ordered slice of RGB frames.
package video

import (
	"cmp"
	"context"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
	"github.com/GriffinCanCode/vidscribe/internal/media"
	"github.com/GriffinCanCode/vidscribe/internal/trace"
)

// Source produces the frames of one input in presentation order.
type Source interface {
	Frames(ctx context.Context, path string) ([]media.Frame, error)
}

// DirectorySource reads PNG and JPEG files from a directory. Files are
// ordered by the first number in their name, then by name; names without a
// number come last.
type DirectorySource struct {
	// FPS assigns timestamps as index/FPS; 0 means DefaultFPS
	FPS float64
}

// Frames implements Source.
func (s DirectorySource) Frames(ctx context.Context, dir string) ([]media.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.FrameSourceFailed, "read frame directory %s", dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			names = append(names, e.Name())
		}
	}
	sortFrameNames(names)

	fps := s.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return decodeFiles(ctx, paths, fps)
}

func decodeFiles(ctx context.Context, paths []string, fps float64) ([]media.Frame, error) {
	log := trace.Logger(ctx)
	frames := make([]media.Frame, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := decodeFile(p)
		if err != nil {
			log.Warn("skipping undecodable frame", "path", p, "error", err)
			continue
		}
		i := len(frames)
		ts := time.Duration(float64(i) / fps * float64(time.Second))
		frames = append(frames, media.FromImage(img, i, ts))
	}
	return frames, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// sortFrameNames puts numbered names first, by number then name, followed by
// the unnumbered names in lexical order.
func sortFrameNames(names []string) {
	slices.SortStableFunc(names, func(a, b string) int {
		an, aok := leadingNumber(a)
		bn, bok := leadingNumber(b)
		switch {
		case aok && !bok:
			return -1
		case !aok && bok:
			return 1
		case aok && bok && an != bn:
			return cmp.Compare(an, bn)
		}
		return strings.Compare(a, b)
	})
}

// leadingNumber returns the first run of digits in name.
func leadingNumber(name string) (int, bool) {
	start := strings.IndexFunc(name, unicode.IsDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(name[start:end])
	return n, err == nil
}
