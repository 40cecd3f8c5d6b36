package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	db "github.com/markdave123-py/contexta-ingest/internal/core/database"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-ingest/internal/core/llm"
	objectclient "github.com/markdave123-py/contexta-ingest/internal/core/object-client"
	"github.com/markdave123-py/contexta-ingest/internal/core/vectorstore"
)

const jobDrainTimeout = 30 * time.Second

type App struct {
	DBClient     *db.DatabaseClient
	ObjectClient *objectclient.S3Client
	Embedder     *llm.Embedder
	Vectors      *vectorstore.PgVectorStore
	Jobs         *ingestion_engine.JobManager
	Server       *Server
}

// NewStore wires the database, embedder and vector collection. init-store uses
// it on its own; NewApp builds on it.
func NewStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}
	logger.Info("database initialized and ready")

	embedder, err := llm.NewEmbedder(appCtx, cfg)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	vectors, err := vectorstore.NewPgVectorStore(dbClient.DB(), embedder, cfg.VectorCollection, logger)
	if err != nil {
		_ = embedder.Close()
		_ = dbClient.Close()
		return nil, err
	}

	return &App{DBClient: dbClient, Embedder: embedder, Vectors: vectors}, nil
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a, err := NewStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	objClient, err := objectclient.NewS3Client(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ObjectClient = objClient
	logger.Info("object client initialized and ready")

	useReadability := false
	extractor := ingestion_engine.NewTextExtractor(useReadability)

	jobs, err := ingestion_engine.NewJobManager(a.DBClient, a.DBClient, objClient, a.Vectors, extractor,
		ingestion_engine.IngestConfig{
			MaxConcurrentJobs: cfg.MaxConcurrentJobs,
			BatchSize:         cfg.UpsertBatchSize,
			Bucket:            cfg.BucketName,
			EmbedModel:        a.Embedder.Model(),
			JobLogsDir:        cfg.JobLogsDir,
		}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Jobs = jobs

	a.Server = NewServer(cfg, jobs, a.Vectors, logger)
	return a, nil
}

// Close drains running jobs, then releases clients.
func (a *App) Close() error {
	var errs []error
	if a.Jobs != nil {
		if err := a.Jobs.Close(jobDrainTimeout); err != nil {
			errs = append(errs, fmt.Errorf("drain jobs: %w", err))
		}
	}
	if a.Embedder != nil {
		errs = append(errs, a.Embedder.Close())
	}
	if a.DBClient != nil {
		errs = append(errs, a.DBClient.Close())
	}
	return errors.Join(errs...)
}
