// Package main provides the HTTP server for sheetcast.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/sheetcast/internal/artifacts"
	"github.com/raphaelgruber/sheetcast/internal/config"
	"github.com/raphaelgruber/sheetcast/internal/db"
	"github.com/raphaelgruber/sheetcast/internal/media"
	"github.com/raphaelgruber/sheetcast/internal/pipeline"
	"github.com/raphaelgruber/sheetcast/internal/server"
	"github.com/raphaelgruber/sheetcast/internal/service"
	"github.com/raphaelgruber/sheetcast/internal/store"
)

const janitorInterval = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg, server.ServiceName)
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("starting sheetcast-server", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	layout := media.Layout{UploadDir: cfg.UploadDir, OutputDir: cfg.OutputDir}
	stages, err := buildStages(ctx, cfg, layout, logger)
	if err != nil {
		return err
	}

	orch := pipeline.New(st, stages,
		pipeline.WithTTL(cfg.JobTTL),
		pipeline.WithLogger(logger.With("component", "pipeline")),
	)
	jobs := service.NewJobService(st, orch, layout, cfg.JobTTL)

	srv := server.New(jobs, server.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		SubmitRate:     cfg.SubmitRate,
		SubmitBurst:    cfg.SubmitBurst,
	}, logger.With("component", "http"))

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // downloads of rendered documents
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API available", "url", fmt.Sprintf("http://localhost%s/api/v1", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	slog.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Running jobs are not cancelled; they finish and then expire.
	slog.Info("server stopped")
	return nil
}

// openStore selects the job store backend and starts its expiry janitor.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreMemory, "":
		mem := store.NewMemory()
		mem.StartJanitor(ctx, janitorInterval)
		return mem, func() {}, nil

	case config.StoreSurrealDB:
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		client, err := db.NewClient(connectCtx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect surrealdb: %w", err)
		}
		if err := client.InitSchema(connectCtx); err != nil {
			_ = client.Close(context.Background())
			return nil, nil, fmt.Errorf("init schema: %w", err)
		}

		sur := store.NewSurreal(client, logger.With("component", "store"))
		sur.StartJanitor(ctx, janitorInterval)
		closeFn := func() {
			if err := client.Close(context.Background()); err != nil {
				slog.Error("failed to close surrealdb", "error", err)
			}
		}
		return sur, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// buildStages wires the external tools into pipeline stages.
func buildStages(ctx context.Context, cfg config.Config, layout media.Layout, logger *slog.Logger) (pipeline.Stages, error) {
	ytdlp, err := media.ParseCommand(cfg.YtDlpCmd)
	if err != nil {
		return pipeline.Stages{}, fmt.Errorf("yt-dlp command: %w", err)
	}
	ffmpeg, err := media.ParseCommand(cfg.FFmpegCmd)
	if err != nil {
		return pipeline.Stages{}, fmt.Errorf("ffmpeg command: %w", err)
	}
	basicPitch, err := media.ParseCommand(cfg.BasicPitchCmd)
	if err != nil {
		return pipeline.Stages{}, fmt.Errorf("basic-pitch command: %w", err)
	}
	var museScore media.Command
	if cfg.MuseScoreCmd != "" {
		if museScore, err = media.ParseCommand(cfg.MuseScoreCmd); err != nil {
			return pipeline.Stages{}, fmt.Errorf("musescore command: %w", err)
		}
	}

	var mirror media.Mirror
	if cfg.S3Bucket != "" {
		s3m, err := artifacts.NewS3Mirror(ctx, cfg.S3Bucket, cfg.S3Prefix, logger.With("component", "s3"))
		if err != nil {
			return pipeline.Stages{}, fmt.Errorf("s3 mirror: %w", err)
		}
		mirror = s3m
		slog.Info("mirroring artifacts to s3", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
	}

	stageLog := logger.With("component", "media")
	return pipeline.Stages{
		Fetch:     media.NewFetcher(layout, ytdlp, stageLog),
		Normalize: media.NewNormalizer(layout, ffmpeg, stageLog),
		Analyze:   media.NewAnalyzer(layout, basicPitch, stageLog),
		Refine:    media.NewRefiner(),
		Export:    media.NewExporter(layout, mirror, stageLog),
		Document:  media.NewDocuments(layout, media.NewMuseScore(museScore, stageLog), mirror, stageLog),
	}, nil
}
