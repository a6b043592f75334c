package video

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
	"github.com/GriffinCanCode/vidscribe/internal/media"
)

func checkerboard(w, h, cell int, lo, hi uint8) media.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: lo, G: lo, B: lo, A: 255}
			if (x/cell+y/cell)%2 == 0 {
				c = color.RGBA{R: hi, G: hi, B: hi, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return media.FromImage(img, 0, 0)
}

func writePNG(t *testing.T, path string, f media.Frame) {
	t.Helper()
	img, err := f.Image()
	if err != nil {
		t.Fatal(err)
	}
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	if err := png.Encode(out, img); err != nil {
		t.Fatal(err)
	}
}

func TestQuality(t *testing.T) {
	solid := media.Solid(32, 32, color.RGBA{R: 90, G: 90, B: 90, A: 255})
	if q := Quality(&solid); q != 0 {
		t.Errorf("Quality(solid) = %v, want 0", q)
	}
	sharp := checkerboard(32, 32, 1, 0, 255)
	if q := Quality(&sharp); q != 1 {
		t.Errorf("Quality(checkerboard) = %v, want 1", q)
	}
	coarse := checkerboard(64, 64, 16, 100, 110)
	q := Quality(&coarse)
	if q <= 0 || q >= 1 {
		t.Errorf("Quality(coarse) = %v, want in (0,1)", q)
	}
	bad := media.Frame{Width: 2, Height: 2}
	if Quality(&bad) != 0 {
		t.Error("malformed frame should score 0")
	}
}

func TestReflect101(t *testing.T) {
	tests := []struct{ i, n, want int }{
		{-1, 5, 1}, {0, 5, 0}, {4, 5, 4}, {5, 5, 3}, {-2, 5, 2}, {3, 1, 0},
	}
	for _, tt := range tests {
		if got := reflect101(tt.i, tt.n); got != tt.want {
			t.Errorf("reflect101(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestFilterQuality(t *testing.T) {
	frames := []media.Frame{
		media.Solid(16, 16, color.RGBA{A: 255}),
		checkerboard(16, 16, 1, 0, 255),
		media.Solid(16, 16, color.RGBA{R: 255, A: 255}),
	}
	frames[1].Index = 1
	got := FilterQuality(context.Background(), frames, DefaultMinQuality)
	if len(got) != 1 || got[0].Index != 1 {
		t.Errorf("kept %d frames, want only the checkerboard", len(got))
	}
	if len(frames) != 3 {
		t.Error("input slice modified")
	}
}

func TestDirectorySource(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "frame_10.png"), checkerboard(8, 8, 2, 0, 255))
	writePNG(t, filepath.Join(dir, "frame_2.png"), media.Solid(8, 8, color.RGBA{R: 255, A: 255}))
	writePNG(t, filepath.Join(dir, "frame_1.png"), media.Solid(8, 8, color.RGBA{G: 255, A: 255}))
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "frame_3.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	frames, err := DirectorySource{FPS: 2}.Frames(context.Background(), dir)
	if err != nil {
		t.Fatalf("Frames() error: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if r, g, _ := frames[0].At(0, 0); g != 255 || r != 0 {
		t.Errorf("frame 0 should be frame_1.png (green), got r=%d g=%d", r, g)
	}
	if r, _, _ := frames[1].At(0, 0); r != 255 {
		t.Error("frame 1 should be frame_2.png (red)")
	}
	if frames[2].Index != 2 || frames[2].Timestamp != time.Second {
		t.Errorf("frame 2 index/timestamp = %d/%v", frames[2].Index, frames[2].Timestamp)
	}
}

func TestDirectorySource_Missing(t *testing.T) {
	_, err := DirectorySource{}.Frames(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if !apperrors.IsCode(err, apperrors.FrameSourceFailed) {
		t.Errorf("error = %v, want FRAME_SOURCE_FAILED", err)
	}
}

func TestSortFrameNames(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			"numeric order",
			[]string{"frame_10.png", "frame_9.png", "frame_1.png"},
			[]string{"frame_1.png", "frame_9.png", "frame_10.png"},
		},
		{
			"unnumbered last",
			[]string{"frame_10.png", "cover.png", "frame_9.png", "appendix.png", "frame_1.png"},
			[]string{"frame_1.png", "frame_9.png", "frame_10.png", "appendix.png", "cover.png"},
		},
		{
			"same number falls back to name",
			[]string{"b_2.png", "zz.png", "a_2.png", "c_1.png"},
			[]string{"c_1.png", "a_2.png", "b_2.png", "zz.png"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// every starting permutation must land on the same order
			for shift := range tt.in {
				names := append(append([]string(nil), tt.in[shift:]...), tt.in[:shift]...)
				sortFrameNames(names)
				if !reflect.DeepEqual(names, tt.want) {
					t.Errorf("shift %d: sorted = %v, want %v", shift, names, tt.want)
				}
			}
		})
	}
}

func TestFFmpegSource_Args(t *testing.T) {
	s := FFmpegSource{FPS: 0.5}
	args := strings.Join(s.extractArgs("in.mp4", "/tmp/x"), " ")
	for _, want := range []string{"-i in.mp4", "-vf fps=0.5", "-pix_fmt rgb24", filepath.Join("/tmp/x", "frame_%05d.png")} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
	if (FFmpegSource{}).fps() != DefaultFPS {
		t.Error("zero FPS should fall back to default")
	}
}

func TestFFmpegSource_MissingInput(t *testing.T) {
	_, err := FFmpegSource{}.Frames(context.Background(), filepath.Join(t.TempDir(), "absent.mp4"))
	if !apperrors.IsCode(err, apperrors.FrameSourceFailed) {
		t.Errorf("error = %v, want FRAME_SOURCE_FAILED", err)
	}
}

func TestFFmpegSource_Extract(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	gen := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=duration=2:size=64x48:rate=10", "-pix_fmt", "yuv420p", "-y", video)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot generate test clip: %v %s", err, out)
	}

	s := FFmpegSource{FPS: 1, TempDir: dir}
	frames, err := s.Frames(context.Background(), video)
	if err != nil {
		t.Fatalf("Frames() error: %v", err)
	}
	if len(frames) == 0 {
		t.Fatal("no frames")
	}
	if frames[0].Width != 64 || frames[0].Height != 48 {
		t.Errorf("frame size = %dx%d", frames[0].Width, frames[0].Height)
	}
	if d, err := s.Duration(context.Background(), video); err != nil || d < time.Second {
		t.Errorf("Duration() = %v, %v", d, err)
	}
}
