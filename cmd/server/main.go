// vidscribe server - runs extraction jobs submitted over HTTP and streams
// their progress over WebSocket
package main

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/GriffinCanCode/vidscribe/internal/config"
	"github.com/GriffinCanCode/vidscribe/internal/jobstore"
	"github.com/GriffinCanCode/vidscribe/internal/ocr"
	"github.com/GriffinCanCode/vidscribe/internal/pipeline"
	"github.com/GriffinCanCode/vidscribe/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("vidscribe-server", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "YAML config file")
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		return err
	}

	logger, logFile, err := cfg.Logging.NewLogger(os.Stdout)
	if err != nil {
		return err
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs, err := jobstore.Open(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer jobs.Close()

	ocrSvc, closeOCR, err := ocr.Open(cfg.OCR)
	if err != nil {
		return err
	}
	defer func() { _ = closeOCR() }()

	events := pipeline.NewEventLog(pipeline.DefaultMaxEvents, pipeline.DefaultEventBuffer)
	mgr, err := pipeline.New(pipeline.Options{Config: cfg, OCR: ocrSvc, Events: events})
	if err != nil {
		return err
	}

	srv := server.New(mgr, jobs, events, cfg.Server, func() map[string]string {
		h := map[string]string{"store": cfg.Store.Path}
		maps.Copy(h, ocrSvc.Health())
		return h
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("vidscribe server starting", "http", cfg.Server.Addr, "ocr", ocrSvc.Backend(), "store", cfg.Store.Path)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		return err
	}

	slog.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	srv.Close()
	slog.Info("shutdown complete")
	return nil
}
