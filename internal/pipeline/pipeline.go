// Package pipeline turns one video into a document: sample frames, drop
// blurry and duplicate ones, OCR the rest, drop duplicate text and assemble.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/GriffinCanCode/vidscribe/internal/config"
	"github.com/GriffinCanCode/vidscribe/internal/dedup"
	"github.com/GriffinCanCode/vidscribe/internal/document"
	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
	"github.com/GriffinCanCode/vidscribe/internal/media"
	"github.com/GriffinCanCode/vidscribe/internal/metrics"
	"github.com/GriffinCanCode/vidscribe/internal/ocr"
	"github.com/GriffinCanCode/vidscribe/internal/trace"
	"github.com/GriffinCanCode/vidscribe/internal/video"
)

// ErrCancelled is returned when a ProgressFunc asks to stop.
var ErrCancelled = apperrors.New(apperrors.Cancelled, "job cancelled")

// ProgressFunc receives stage updates. Returning false cancels the job.
type ProgressFunc func(percent int, message string) bool

// Request describes one job.
type Request struct {
	// JobID scopes the work directories; empty means the output root is used
	// directly and reset
	JobID string
	// Input is a video file or a directory of extracted frames
	Input    string
	Title    string
	Progress ProgressFunc
}

// Result summarises a finished job.
type Result struct {
	JobID        string
	Dir          string
	Images       []string
	Texts        []string
	Documents    []string
	FramesTotal  int
	FramesSharp  int
	FramesUnique int
	TextsTotal   int
	TextsUnique  int
	Elapsed      time.Duration
}

// Document returns the first written document, or "".
func (r *Result) Document() string {
	if len(r.Documents) == 0 {
		return ""
	}
	return r.Documents[0]
}

// Options wires a Manager. Nil fields get defaults built from Config.
type Options struct {
	Config *config.Config
	// Video samples video files
	Video video.Source
	// Frames reads directories of frames
	Frames video.Source
	OCR    *ocr.Service
	Events *EventLog
	// Assemblers builds the document writers for a documents directory
	Assemblers func(dir string) []document.Assembler
}

// Manager runs jobs.
type Manager struct {
	cfg        *config.Config
	video      video.Source
	frames     video.Source
	ocr        *ocr.Service
	events     *EventLog
	assemblers func(dir string) []document.Assembler
}

// New creates a manager.
func New(opts Options) (*Manager, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, apperrors.New(apperrors.ConfigInvalid, "pipeline requires a config")
	}
	if _, err := dedupConfig(cfg); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:        cfg,
		video:      opts.Video,
		frames:     opts.Frames,
		ocr:        opts.OCR,
		events:     opts.Events,
		assemblers: opts.Assemblers,
	}
	if m.video == nil {
		m.video = video.FFmpegSource{
			FPS:     cfg.Extraction.FPS,
			FFmpeg:  cfg.Extraction.FFmpeg,
			FFprobe: cfg.Extraction.FFprobe,
		}
	}
	if m.frames == nil {
		m.frames = video.DirectorySource{FPS: cfg.Extraction.FPS}
	}
	if m.ocr == nil {
		m.ocr = ocr.NewService(ocr.Nop{})
	}
	if m.events == nil {
		m.events = NewEventLog(DefaultMaxEvents, DefaultEventBuffer)
	}
	if m.assemblers == nil {
		m.assemblers = m.defaultAssemblers
	}
	return m, nil
}

// Events returns the manager's event log.
func (m *Manager) Events() *EventLog { return m.events }

func (m *Manager) defaultAssemblers(dir string) []document.Assembler {
	out := []document.Assembler{document.NewDocxWriter(dir)}
	if m.cfg.Output.PDF {
		out = append(out, document.NewPDFWriter(dir))
	}
	return out
}

func dedupConfig(cfg *config.Config) (dedup.Config, error) {
	kind, err := dedup.ParseKind(cfg.Dedup.ImageHash)
	if err != nil {
		return dedup.Config{}, err
	}
	dc := dedup.Config{
		SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
		CacheSize:           cfg.Dedup.CacheSize,
		Workers:             cfg.Dedup.Workers,
		ImageHash:           kind,
	}
	return dc, dc.Validate()
}

// job carries the state of one Process call.
type job struct {
	req    Request
	dirs   workDirs
	result *Result
	frames []media.Frame
	texts  []string
}

type workDirs struct {
	root, images, texts, documents string
}

// Process runs req to completion.
func (m *Manager) Process(ctx context.Context, req Request) (res *Result, err error) {
	if req.JobID != "" {
		ctx = trace.WithJob(ctx, req.JobID)
	}
	ctx, span := trace.StartSpan(ctx, "pipeline.process")
	span.SetAttr("input", req.Input)
	log := trace.Logger(ctx)
	start := time.Now()

	j := &job{req: req, result: &Result{JobID: req.JobID}}
	defer func() {
		j.result.Elapsed = time.Since(start)
		span.End(err)
		switch {
		case err == nil:
			metrics.Jobs.WithLabelValues("done").Inc()
			m.events.Add(Event{Type: EventDone, JobID: req.JobID, Percent: ProgressDone, Message: j.result.Document()})
		case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
			metrics.Jobs.WithLabelValues("cancelled").Inc()
			m.events.Add(Event{Type: EventFailed, JobID: req.JobID, Percent: -1, Message: "cancelled"})
		default:
			metrics.Jobs.WithLabelValues("failed").Inc()
			m.events.Add(Event{Type: EventFailed, JobID: req.JobID, Percent: -1, Message: err.Error()})
			log.Error("job failed", "error", err)
		}
	}()

	if _, err := os.Stat(req.Input); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.InvalidArgument, "input %s", req.Input)
	}
	dc, err := dedupConfig(m.cfg)
	if err != nil {
		return nil, err
	}
	engine, err := dedup.New(dc)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	stages := []struct {
		name    string
		percent int
		message string
		run     func(context.Context, *job, *dedup.Deduplicator) error
	}{
		{"prepare", ProgressPrepare, "preparing work directories", m.prepare},
		{"images", ProgressImages, "extracting images", m.extractImages},
		{"text", ProgressText, "extracting text", m.extractText},
		{"document", ProgressDocument, "assembling document", m.assemble},
		{"cleanup", ProgressCleanup, "cleaning up", m.cleanup},
	}

	if err := m.report(ctx, req, ProgressStart, "starting"); err != nil {
		return nil, err
	}
	for _, s := range stages {
		if err := m.report(ctx, req, s.percent, s.message); err != nil {
			return nil, err
		}
		t := time.Now()
		err := s.run(ctx, j, engine)
		metrics.JobStageSeconds.WithLabelValues(s.name).Observe(time.Since(t).Seconds())
		if err != nil {
			return nil, err
		}
	}
	if err := m.report(ctx, req, ProgressDone, "done"); err != nil {
		return nil, err
	}

	r := j.result
	log.Info("job finished", "frames", r.FramesTotal, "sharp", r.FramesSharp, "unique_frames", r.FramesUnique,
		"texts", r.TextsTotal, "unique_texts", r.TextsUnique, "document", r.Document())
	return r, nil
}

// report publishes progress and checks for cancellation.
func (m *Manager) report(ctx context.Context, req Request, percent int, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.events.Add(Event{Type: EventProgress, JobID: req.JobID, Percent: percent, Message: message})
	if req.Progress != nil && !req.Progress(percent, message) {
		return ErrCancelled
	}
	return nil
}

func (m *Manager) prepare(ctx context.Context, j *job, _ *dedup.Deduplicator) error {
	root := m.cfg.Output.Directory
	if j.req.JobID != "" {
		root = filepath.Join(root, j.req.JobID)
	}
	j.dirs = workDirs{
		root:      root,
		images:    filepath.Join(root, imagesDir),
		texts:     filepath.Join(root, textsDir),
		documents: filepath.Join(root, documentsDir),
	}
	j.result.Dir = root
	for _, dir := range []string{j.dirs.images, j.dirs.texts, j.dirs.documents} {
		if err := os.RemoveAll(dir); err != nil {
			return apperrors.Wrapf(err, apperrors.Internal, "reset %s", dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.Wrapf(err, apperrors.Internal, "create %s", dir)
		}
	}
	trace.Logger(ctx).Debug("work directories ready", "root", root)
	return nil
}

func (m *Manager) extractImages(ctx context.Context, j *job, engine *dedup.Deduplicator) error {
	src := m.video
	if info, err := os.Stat(j.req.Input); err == nil && info.IsDir() {
		src = m.frames
	}
	frames, err := src.Frames(ctx, j.req.Input)
	if err != nil {
		return err
	}
	j.result.FramesTotal = len(frames)

	sharp := video.FilterQuality(ctx, frames, m.cfg.Extraction.MinQuality)
	j.result.FramesSharp = len(sharp)

	unique := engine.DeduplicateImages(sharp)
	j.result.FramesUnique = len(unique)

	for i := range unique {
		png, err := media.EncodePNG(&unique[i])
		if err != nil {
			return err
		}
		path := filepath.Join(j.dirs.images, fmt.Sprintf("image_%d.png", i))
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return apperrors.Wrapf(err, apperrors.Internal, "save %s", path)
		}
		j.result.Images = append(j.result.Images, path)
	}
	j.frames = unique
	return nil
}

func (m *Manager) extractText(ctx context.Context, j *job, engine *dedup.Deduplicator) error {
	frames := j.frames
	mapper := iter.Mapper[media.Frame, string]{MaxGoroutines: max(m.cfg.OCR.Workers, 1)}
	texts := mapper.Map(frames, func(f *media.Frame) string {
		return m.ocr.Text(ctx, *f)
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	var nonEmpty []string
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	j.result.TextsTotal = len(nonEmpty)

	unique := engine.DeduplicateTexts(nonEmpty)
	j.result.TextsUnique = len(unique)
	for i, t := range unique {
		path := filepath.Join(j.dirs.texts, fmt.Sprintf("text_%d.txt", i))
		if err := os.WriteFile(path, []byte(t), 0o644); err != nil {
			return apperrors.Wrapf(err, apperrors.Internal, "save %s", path)
		}
		j.result.Texts = append(j.result.Texts, path)
	}
	j.texts = unique
	return nil
}

func (m *Manager) assemble(ctx context.Context, j *job, _ *dedup.Deduplicator) error {
	content := document.Content{
		Title:  j.req.Title,
		Images: j.frames,
		Texts:  j.texts,
	}
	for _, a := range m.assemblers(j.dirs.documents) {
		path, err := a.Assemble(ctx, content)
		if err != nil {
			return err
		}
		j.result.Documents = append(j.result.Documents, path)
	}
	return nil
}

// cleanup removes a downloaded video unless it should be kept.
func (m *Manager) cleanup(ctx context.Context, j *job, _ *dedup.Deduplicator) error {
	j.frames, j.texts = nil, nil

	p := m.cfg.Processing
	if p.KeepVideo || p.DownloadDir == "" || !within(p.DownloadDir, j.req.Input) {
		return nil
	}
	if err := os.Remove(j.req.Input); err != nil && !os.IsNotExist(err) {
		trace.Logger(ctx).Warn("failed to remove video", "path", j.req.Input, "error", err)
		return nil
	}
	trace.Logger(ctx).Info("removed downloaded video", "path", j.req.Input)
	return nil
}

// within reports whether path lies inside dir.
func within(dir, path string) bool {
	absDir, err1 := filepath.Abs(dir)
	absPath, err2 := filepath.Abs(path)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
