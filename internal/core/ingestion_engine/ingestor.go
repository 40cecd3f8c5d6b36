package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Ingestor is the job API served over HTTP.
type Ingestor interface {
	Start(ctx context.Context, subject string, req models.IngestionRequest, createdBy string) (*models.IngestionJob, error)
	Get(ctx context.Context, jobID string) (*models.IngestionJob, error)
	List(ctx context.Context, subject string) ([]models.IngestionJob, error)
	// Cancel reports whether the request was accepted; false means the job is
	// unknown or already finished.
	Cancel(ctx context.Context, jobID string) (bool, error)
}

var _ Ingestor = (*JobManager)(nil)
