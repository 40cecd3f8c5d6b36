package ingestion_engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	objectclient "github.com/markdave123-py/contexta-ingest/internal/core/object-client"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// processDocument runs download, extract, chunk and upsert for one document and
// returns the number of points written. Failures here never fail the job.
func (m *JobManager) processDocument(ctx context.Context, logger *slog.Logger, docID, category string, opts models.ResolvedOptions) int {
	doc, err := m.docs.GetDocumentByID(ctx, docID)
	switch {
	case errors.Is(err, core.ErrDocumentNotFound) || (err == nil && doc == nil):
		logger.Warn("candidate document no longer available, skipping")
		return 0
	case err != nil:
		logger.Warn("document lookup failed", "error", err)
		m.markDocument(ctx, logger, docID, models.DocumentFailed)
		return 0
	}

	bucket, key, err := objectclient.ResolveLocation(doc.StorageKey, m.cfg.Bucket)
	if err != nil {
		logger.Warn("unusable storage location", "storage_key", doc.StorageKey, "error", err)
		m.markDocument(ctx, logger, doc.ID, models.DocumentFailed)
		return 0
	}

	data, err := m.obj.GetFile(ctx, bucket, key)
	if err != nil {
		logger.Warn("download failed", "bucket", bucket, "key", key, "error", err)
		m.markDocument(ctx, logger, doc.ID, models.DocumentFailed)
		return 0
	}

	text := m.extractor.ExtractText(ctx, data, doc.ContentType)
	if strings.TrimSpace(text) == "" {
		logger.Warn("no extractable text, document left unchanged", "bytes", len(data), "content_type", doc.ContentType)
		return 0
	}

	chunks := buildChunks(doc, category, objectclient.URI(bucket, key), dropBlank(ChunkText(text, opts.ChunkSize)))
	if len(chunks) == 0 {
		logger.Warn("no non-blank chunks, document left unchanged")
		return 0
	}

	if !opts.Append {
		if err := m.store.DeleteByDoc(ctx, doc.ID); err != nil {
			logger.Warn("failed to replace existing vectors", "error", err)
			m.markDocument(ctx, logger, doc.ID, models.DocumentFailed)
			return 0
		}
	}

	n, err := m.store.UpsertChunks(ctx, chunks, m.cfg.BatchSize)
	if err != nil {
		logger.Warn("upsert failed", "chunks", len(chunks), "error", err)
		m.markDocument(ctx, logger, doc.ID, models.DocumentFailed)
		return 0
	}

	m.markDocument(ctx, logger, doc.ID, models.DocumentIngested)
	logger.Info("document ingested", "chunks", len(chunks), "vectors", n)
	return n
}

func buildChunks(doc *models.Document, category, uri string, pieces []string) []models.Chunk {
	chunks := make([]models.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = models.Chunk{
			Subject: category,
			Topics:  []string{},
			S3URI:   uri,
			DocID:   doc.ID,
			Page:    0,
			ChunkID: i,
			Title:   doc.FileName,
			Text:    p,
		}
	}
	return chunks
}

func (m *JobManager) markDocument(ctx context.Context, logger *slog.Logger, docID string, status models.DocumentStatus) {
	if err := m.docs.UpdateDocumentStatus(ctx, docID, status); err != nil {
		logger.Error("failed to update document status", "status", status, "error", err)
	}
}
