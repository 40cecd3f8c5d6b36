package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/contexta-ingest/internal/app"
	"github.com/markdave123-py/contexta-ingest/internal/config"
)

func serveCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the ingestion job pool",
		Long: `Start the HTTP API and the ingestion job pool.

Environment variables:
  DATABASE_URL          Postgres connection string (required)
  S3_BUCKET             Default bucket for bare storage keys
  S3_ENDPOINT           S3-compatible endpoint, e.g. MinIO
  EMBED_PROVIDER        gemini, ollama or openai (default: gemini)
  EMBED_DIM             Vector width of the collection (default: 384)
  VECTOR_COLLECTION     Collection table name (default: academia_docs)
  MAX_CONCURRENT_JOBS   Jobs running at once; more are rejected (default: 4)
  JOB_LOGS_DIR          Directory for per-job log files`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *envFile)
		},
	}
}

func setup(envFile string) (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.SlogLevel())
	slog.SetDefault(logger)
	return cfg, logger, closeLog, nil
}

func runServe(parent context.Context, envFile string) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, logger, closeLog, err := setup(envFile)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("shutdown incomplete", "error", err)
		}
	}()

	if err := application.Vectors.InitStore(ctx); err != nil {
		// jobs retry it and fail individually
		logger.Warn("vector collection not ready at startup", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(application.Server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return application.Server.Shutdown(shutdownCtx)
	})

	logger.Info("ingestion service running", "port", cfg.Port, "collection", cfg.VectorCollection)
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}
