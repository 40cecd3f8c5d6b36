package db

import (
	"context"
	"database/sql"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// DbClient is the relational side of ingestion: the document registry and the
// job store share one Postgres pool.
type DbClient interface {
	core.DocumentRegistry
	core.JobStore

	CreateDocument(ctx context.Context, doc *models.Document) error

	DB() *sql.DB
	Close() error
}
