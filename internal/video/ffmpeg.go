package video

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
	"github.com/GriffinCanCode/vidscribe/internal/media"
	"github.com/GriffinCanCode/vidscribe/internal/trace"
)

// FFmpegSource samples a video at a fixed rate by shelling out to ffmpeg.
type FFmpegSource struct {
	FPS     float64
	FFmpeg  string // binary, "ffmpeg" if empty
	FFprobe string // binary, "ffprobe" if empty
	TempDir string // parent for the scratch directory, os.TempDir() if empty
}

// Frames implements Source. Extracted images are removed before returning.
func (s FFmpegSource) Frames(ctx context.Context, videoPath string) ([]media.Frame, error) {
	ctx, span := trace.StartSpan(ctx, "video.ffmpeg")
	log := trace.Logger(ctx)

	if _, err := os.Stat(videoPath); err != nil {
		span.End(err)
		return nil, apperrors.Wrapf(err, apperrors.FrameSourceFailed, "open video %s", videoPath)
	}

	duration, err := s.Duration(ctx, videoPath)
	if err != nil {
		log.Warn("could not probe video duration", "path", videoPath, "error", err)
	}

	dir, err := os.MkdirTemp(s.TempDir, "vidscribe-frames-*")
	if err != nil {
		span.End(err)
		return nil, apperrors.Wrap(err, apperrors.FrameSourceFailed, "create frame directory")
	}
	defer os.RemoveAll(dir)

	cmd := exec.CommandContext(ctx, s.bin(s.FFmpeg, "ffmpeg"), s.extractArgs(videoPath, dir)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		span.End(err)
		return nil, apperrors.Wrapf(err, apperrors.FrameSourceFailed, "ffmpeg: %s", tail(out, 512))
	}

	paths, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		span.End(err)
		return nil, apperrors.Wrap(err, apperrors.FrameSourceFailed, "list extracted frames")
	}
	if len(paths) == 0 {
		err := apperrors.Newf(apperrors.FrameSourceFailed, "no frames extracted from %s", videoPath)
		span.End(err)
		return nil, err
	}
	sortFrameNames(paths)

	frames, err := decodeFiles(ctx, paths, s.fps())
	span.SetAttr("frames", len(frames))
	span.End(err)
	if err != nil {
		return nil, err
	}
	log.Info("frames extracted", "count", len(frames), "duration", duration, "fps", s.fps())
	return frames, nil
}

// Duration probes the container duration.
func (s FFmpegSource) Duration(ctx context.Context, videoPath string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, s.bin(s.FFprobe, "ffprobe"),
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.FrameSourceFailed, "ffprobe")
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, apperrors.Wrapf(err, apperrors.FrameSourceFailed, "parse duration %q", strings.TrimSpace(string(out)))
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (s FFmpegSource) extractArgs(videoPath, dir string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vf", "fps=" + strconv.FormatFloat(s.fps(), 'f', -1, 64),
		"-pix_fmt", "rgb24",
		"-y",
		filepath.Join(dir, framePattern),
	}
}

func (s FFmpegSource) fps() float64 {
	if s.FPS <= 0 {
		return DefaultFPS
	}
	return s.FPS
}

func (s FFmpegSource) bin(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return fmt.Sprintf("...%s", s[len(s)-n:])
	}
	return s
}
