// vidscribe - extracts the unique slides and their text from a video into a
// document
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/GriffinCanCode/vidscribe/internal/config"
	"github.com/GriffinCanCode/vidscribe/internal/ocr"
	"github.com/GriffinCanCode/vidscribe/internal/pipeline"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("vidscribe", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: vidscribe [flags] <video>")
		fs.PrintDefaults()
	}
	input := fs.StringP("input", "i", "", "video file to process")
	framesDir := fs.String("frames-dir", "", "directory of already extracted frames, instead of --input")
	title := fs.StringP("title", "t", "", "document title (default: input file name)")
	configPath := fs.StringP("config", "c", "", "YAML config file")
	quiet := fs.BoolP("quiet", "q", false, "do not print progress")
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	src := *input
	if src == "" && fs.NArg() > 0 {
		src = fs.Arg(0)
	}
	if *framesDir != "" {
		src = *framesDir
	}
	if src == "" {
		fs.Usage()
		return errors.New("one of --input or --frames-dir is required")
	}
	if *title == "" {
		base := filepath.Base(src)
		*title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		return err
	}
	logger, logFile, err := cfg.Logging.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	ocrSvc, closeOCR, err := ocr.Open(cfg.OCR)
	if err != nil {
		return err
	}
	defer func() { _ = closeOCR() }()

	mgr, err := pipeline.New(pipeline.Options{Config: cfg, OCR: ocrSvc})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := mgr.Process(ctx, pipeline.Request{
		Input: src,
		Title: *title,
		Progress: func(percent int, message string) bool {
			if !*quiet {
				fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", percent, message)
			}
			return true
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("frames: %d sampled, %d sharp, %d unique\n", res.FramesTotal, res.FramesSharp, res.FramesUnique)
	fmt.Printf("texts:  %d extracted, %d unique\n", res.TextsTotal, res.TextsUnique)
	for _, doc := range res.Documents {
		fmt.Println("document:", doc)
	}
	return nil
}
