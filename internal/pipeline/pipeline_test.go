package pipeline

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/GriffinCanCode/vidscribe/internal/config"
	"github.com/GriffinCanCode/vidscribe/internal/media"
	"github.com/GriffinCanCode/vidscribe/internal/ocr"
)

// barFrame is a white frame with a black bar over columns [x0, x1).
func barFrame(index, x0, x1 int) media.Frame {
	f := media.Solid(96, 96, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	f.Index = index
	for y := 0; y < f.Height; y++ {
		for x := x0; x < x1; x++ {
			i := (y*f.Width + x) * media.Channels
			f.Data[i], f.Data[i+1], f.Data[i+2] = 0, 0, 0
		}
	}
	return f
}

type mockSource struct {
	frames []media.Frame
	err    error
	calls  int
}

func (s *mockSource) Frames(context.Context, string) ([]media.Frame, error) {
	s.calls++
	return s.frames, s.err
}

// barReader "reads" which side of the frame the bar is on.
type barReader struct{}

func (b *barReader) Name() string { return "bar" }

func (b *barReader) ExtractText(_ context.Context, f *media.Frame) (string, error) {
	if r, _, _ := f.At(0, 0); r == 0 {
		return "Agenda for the quarterly planning meeting", nil
	}
	return "Summary of hiring decisions and budget", nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("", nil)
	if err != nil {
		t.Fatalf("config.Load() error: %v", err)
	}
	cfg.Output.Directory = t.TempDir()
	cfg.Extraction.MinQuality = 0
	cfg.OCR.Workers = 2
	return cfg
}

func writeInput(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "talk.mp4")
	if err := os.WriteFile(path, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newManager(t *testing.T, cfg *config.Config, src *mockSource) *Manager {
	t.Helper()
	m, err := New(Options{Config: cfg, Video: src, OCR: ocr.NewService(&barReader{})})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return m
}

func slideFrames() []media.Frame {
	return []media.Frame{
		barFrame(0, 0, 24),
		barFrame(1, 0, 24),
		barFrame(2, 72, 96),
		barFrame(3, 0, 24),
	}
}

func TestProcess(t *testing.T) {
	cfg := testConfig(t)
	src := &mockSource{frames: slideFrames()}
	m := newManager(t, cfg, src)

	var percents []int
	res, err := m.Process(context.Background(), Request{
		Input: writeInput(t, t.TempDir()),
		Title: "Planning",
		Progress: func(p int, _ string) bool {
			percents = append(percents, p)
			return true
		},
	})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if want := []int{0, 10, 30, 60, 80, 90, 100}; !reflect.DeepEqual(percents, want) {
		t.Errorf("progress = %v, want %v", percents, want)
	}
	if res.FramesTotal != 4 || res.FramesSharp != 4 || res.FramesUnique != 2 {
		t.Errorf("frames total/sharp/unique = %d/%d/%d, want 4/4/2", res.FramesTotal, res.FramesSharp, res.FramesUnique)
	}
	if res.TextsTotal != 2 || res.TextsUnique != 2 {
		t.Errorf("texts total/unique = %d/%d, want 2/2", res.TextsTotal, res.TextsUnique)
	}

	wantImages := []string{
		filepath.Join(cfg.Output.Directory, "images", "image_0.png"),
		filepath.Join(cfg.Output.Directory, "images", "image_1.png"),
	}
	if !reflect.DeepEqual(res.Images, wantImages) {
		t.Errorf("images = %v, want %v", res.Images, wantImages)
	}
	text, err := os.ReadFile(filepath.Join(cfg.Output.Directory, "texts", "text_0.txt"))
	if err != nil || string(text) != "Agenda for the quarterly planning meeting" {
		t.Errorf("text_0.txt = %q, %v", text, err)
	}
	if filepath.Base(res.Document()) != "Planning.docx" {
		t.Errorf("document = %q", res.Document())
	}
	if _, err := os.Stat(res.Document()); err != nil {
		t.Errorf("document missing: %v", err)
	}
}

func TestProcess_ResetsWorkDirs(t *testing.T) {
	cfg := testConfig(t)
	stale := filepath.Join(cfg.Output.Directory, "images", "image_9.png")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	m := newManager(t, cfg, &mockSource{frames: slideFrames()})
	if _, err := m.Process(context.Background(), Request{Input: writeInput(t, t.TempDir())}); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale image from a previous run survived")
	}
}

func TestProcess_JobScopedDirs(t *testing.T) {
	cfg := testConfig(t)
	m := newManager(t, cfg, &mockSource{frames: slideFrames()})
	res, err := m.Process(context.Background(), Request{JobID: "job-1", Input: writeInput(t, t.TempDir())})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if want := filepath.Join(cfg.Output.Directory, "job-1"); res.Dir != want {
		t.Errorf("Dir = %s, want %s", res.Dir, want)
	}

	events := m.Events().Job("job-1")
	if len(events) == 0 || events[len(events)-1].Type != EventDone {
		t.Errorf("last event = %+v, want done", events)
	}
}

func TestProcess_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	src := &mockSource{frames: slideFrames()}
	m := newManager(t, cfg, src)

	_, err := m.Process(context.Background(), Request{
		JobID:    "c",
		Input:    writeInput(t, t.TempDir()),
		Progress: func(p int, _ string) bool { return p < ProgressImages },
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("error = %v, want ErrCancelled", err)
	}
	if src.calls != 0 {
		t.Error("frames were extracted after cancellation")
	}
	events := m.Events().Job("c")
	if last := events[len(events)-1]; last.Type != EventFailed || last.Message != "cancelled" {
		t.Errorf("last event = %+v", last)
	}
}

func TestProcess_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := newManager(t, testConfig(t), &mockSource{frames: slideFrames()})
	if _, err := m.Process(ctx, Request{Input: writeInput(t, t.TempDir())}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestProcess_SourceError(t *testing.T) {
	boom := errors.New("ffmpeg exploded")
	m := newManager(t, testConfig(t), &mockSource{err: boom})
	if _, err := m.Process(context.Background(), Request{Input: writeInput(t, t.TempDir())}); !errors.Is(err, boom) {
		t.Errorf("error = %v, want source error", err)
	}
}

func TestProcess_MissingInput(t *testing.T) {
	m := newManager(t, testConfig(t), &mockSource{})
	if _, err := m.Process(context.Background(), Request{Input: "/does/not/exist.mp4"}); err == nil {
		t.Error("expected error for missing input")
	}
}

func TestProcess_FrameDirectory(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	for i, f := range slideFrames() {
		png, err := media.EncodePNG(&f)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "frame_"+string(rune('0'+i))+".png"), png, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	src := &mockSource{}
	m := newManager(t, cfg, src)
	res, err := m.Process(context.Background(), Request{Input: dir})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if src.calls != 0 {
		t.Error("video source used for a frame directory")
	}
	if res.FramesTotal != 4 || res.FramesUnique != 2 {
		t.Errorf("frames total/unique = %d/%d, want 4/2", res.FramesTotal, res.FramesUnique)
	}
}

func TestProcess_KeepVideo(t *testing.T) {
	tests := []struct {
		name     string
		keep     bool
		inDL     bool
		wantGone bool
	}{
		{"removed from download dir", false, true, true},
		{"kept when configured", true, true, false},
		{"outside download dir", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Processing.KeepVideo = tt.keep
			cfg.Processing.DownloadDir = t.TempDir()
			dir := t.TempDir()
			if tt.inDL {
				dir = cfg.Processing.DownloadDir
			}
			input := writeInput(t, dir)

			m := newManager(t, cfg, &mockSource{frames: slideFrames()})
			if _, err := m.Process(context.Background(), Request{Input: input}); err != nil {
				t.Fatalf("Process() error: %v", err)
			}
			_, err := os.Stat(input)
			if gone := os.IsNotExist(err); gone != tt.wantGone {
				t.Errorf("video removed = %v, want %v", gone, tt.wantGone)
			}
		})
	}
}

func TestNew_InvalidDedupConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dedup.ImageHash = "wavelet"
	if _, err := New(Options{Config: cfg}); err == nil {
		t.Error("expected error for unknown image hash")
	}
	if _, err := New(Options{}); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/data/dl", "/data/dl/a.mp4", true},
		{"/data/dl", "/data/dl/sub/a.mp4", true},
		{"/data/dl", "/data/other/a.mp4", false},
		{"/data/dl", "/data/dl", false},
		{"/data/dl", "/data/dl2/a.mp4", false},
	}
	for _, tt := range tests {
		if got := within(tt.dir, tt.path); got != tt.want {
			t.Errorf("within(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
