package core

import (
	"context"
	"errors"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// ErrDocumentNotFound is returned (wrapped) by a DocumentRegistry for unknown ids.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentRegistry is the ingestion core's narrow view of the documents table:
// it lists candidates and writes a document's status, nothing else.
type DocumentRegistry interface {
	ListDocuments(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus) error
}

// JobStore persists ingestion jobs. Status changes are conditional on the
// current status so that terminal states are never left.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.IngestionJob) error
	GetJob(ctx context.Context, id string) (*models.IngestionJob, error)
	ListJobsBySubject(ctx context.Context, subject string) ([]models.IngestionJob, error)

	// TransitionJob moves the job to `to` only if its current status is in `from`.
	// It reports whether the row changed.
	TransitionJob(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus, errMsg *string) (bool, error)
	UpdateJobProgress(ctx context.Context, id string, docsDone, vectors int) error
	SetJobLogsURL(ctx context.Context, id string, url string) error
}

// ObjectClient reads whole objects from S3 or any compatible object storage.
type ObjectClient interface {
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}

// VectorStore owns one named collection of embedded chunks.
type VectorStore interface {
	InitStore(ctx context.Context) error
	UpsertChunks(ctx context.Context, chunks []models.Chunk, batchSize int) (int, error)
	Search(ctx context.Context, q models.SearchQuery) ([]models.SearchHit, error)
	DeleteByDoc(ctx context.Context, docID string) error
	Count(ctx context.Context, subject string) (int64, error)
}
