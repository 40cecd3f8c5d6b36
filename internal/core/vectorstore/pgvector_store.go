// Package vectorstore keeps embedded chunks in a Postgres table with a pgvector
// column, one table per collection.
package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

const (
	DefaultBatchSize        = 128
	DefaultTopK             = 5
	defaultEmbedConcurrency = 4
)

var collectionPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,50}$`)

type PgVectorStore struct {
	db         *sql.DB
	embedder   core.EmbeddingProvider
	collection string
	dim        int
	typeMap    *pgtype.Map
	logger     *slog.Logger

	// EmbedConcurrency bounds how many embedding batches run at once during an upsert.
	EmbedConcurrency int
}

var _ core.VectorStore = (*PgVectorStore)(nil)

// NewPgVectorStore binds a collection to a shared pool and embedder. The vector
// width is taken from the embedder.
func NewPgVectorStore(db *sql.DB, embedder core.EmbeddingProvider, collection string, logger *slog.Logger) (*PgVectorStore, error) {
	if !collectionPattern.MatchString(collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	if embedder == nil {
		return nil, errors.New("vectorstore: nil embedder")
	}
	if embedder.Dimension() <= 0 {
		return nil, fmt.Errorf("vectorstore: embedder reports dimension %d", embedder.Dimension())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PgVectorStore{
		db:               db,
		embedder:         embedder,
		collection:       collection,
		dim:              embedder.Dimension(),
		typeMap:          pgtype.NewMap(),
		logger:           logger.With("collection", collection),
		EmbedConcurrency: defaultEmbedConcurrency,
	}, nil
}

func (s *PgVectorStore) Collection() string { return s.collection }

func (s *PgVectorStore) table() string {
	return pgx.Identifier{s.collection}.Sanitize()
}

func (s *PgVectorStore) index(suffix string) string {
	return pgx.Identifier{s.collection + "_" + suffix}.Sanitize()
}

// InitStore creates the extension, table and indexes if missing. Running it
// concurrently from several processes is safe.
func (s *PgVectorStore) InitStore(ctx context.Context) error {
	if err := s.exec(ctx, "extension", `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return err
	}

	existing, err := s.existingDimension(ctx)
	if err != nil {
		return err
	}
	if existing > 0 && existing != s.dim {
		return fmt.Errorf("%w: collection %s has %d, embedder produces %d", ErrDimensionMismatch, s.collection, existing, s.dim)
	}

	stmts := []struct{ what, sql string }{
		{"table", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id         UUID PRIMARY KEY,
				subject    TEXT        NOT NULL,
				topics     TEXT[]      NOT NULL DEFAULT '{}',
				s3_uri     TEXT        NOT NULL DEFAULT '',
				doc_id     TEXT        NOT NULL CHECK (doc_id <> ''),
				page       INTEGER     NOT NULL DEFAULT 0,
				chunk_id   INTEGER     NOT NULL,
				title      TEXT        NOT NULL DEFAULT '',
				text       TEXT        NOT NULL,
				embedding  vector(%d)  NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, s.table(), s.dim)},
		{"subject index", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (subject)`, s.index("subject_idx"), s.table())},
		{"doc_id index", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (doc_id)`, s.index("doc_id_idx"), s.table())},
		{"topics index", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING gin (topics)`, s.index("topics_idx"), s.table())},
		{"vector index", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`, s.index("embedding_idx"), s.table())},
	}
	for _, st := range stmts {
		if err := s.exec(ctx, st.what, st.sql); err != nil {
			return err
		}
	}
	s.logger.Info("vector collection ready", "dimension", s.dim)
	return nil
}

func (s *PgVectorStore) exec(ctx context.Context, what, q string) error {
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		if isCreationRace(err) {
			s.logger.Debug("concurrent creation, already exists", "object", what, "error", err)
			return nil
		}
		return fmt.Errorf("create %s: %w", what, err)
	}
	return nil
}

// existingDimension returns the width of the embedding column, or 0 when the
// table does not exist yet.
func (s *PgVectorStore) existingDimension(ctx context.Context) (int, error) {
	const q = `
		SELECT a.atttypmod
		FROM pg_attribute a
		WHERE a.attrelid = to_regclass($1)
		  AND a.attname = 'embedding'
		  AND NOT a.attisdropped
	`
	var dim int
	err := s.db.QueryRowContext(ctx, q, s.table()).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("inspect collection: %w", err)
	}
	return dim, nil
}

// duplicate_table, duplicate_object and the unique_violation raised on pg_type
// when two sessions create the same relation.
func isCreationRace(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "42P07", "42710", "23505":
		return true
	}
	return false
}

// UpsertChunks embeds chunks batchSize at a time and inserts every point in one
// transaction. Each point gets a fresh id. It returns the number of points written.
func (s *PgVectorStore) UpsertChunks(ctx context.Context, chunks []models.Chunk, batchSize int) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	for i := range chunks {
		if strings.TrimSpace(chunks[i].DocID) == "" {
			return 0, fmt.Errorf("chunk %d: %w", i, ErrMissingDocID)
		}
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.EmbedConcurrency))
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}
			vecs, err := s.embedder.EmbedTexts(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embed batch [%d:%d]: got %d vectors for %d texts", start, end, len(vecs), len(texts))
			}
			for i, v := range vecs {
				if len(v) != s.dim {
					return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), s.dim)
				}
				vectors[start+i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	q := fmt.Sprintf(`
		INSERT INTO %s (id, subject, topics, s3_uri, doc_id, page, chunk_id, title, text, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.table())
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		c := &chunks[i]
		topics := c.Topics
		if topics == nil {
			topics = []string{}
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(), c.Subject, topics, c.S3URI, c.DocID, c.Page, c.ChunkID, c.Title, c.Text,
			pgvector.NewVector(vectors[i]),
		); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert point %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}

	s.logger.Debug("upserted points", "count", len(chunks), "doc_id", chunks[0].DocID)
	return len(chunks), nil
}

// buildFilter renders the AND of the non-empty filters in q. Placeholders start
// at $firstArg.
func buildFilter(q models.SearchQuery, firstArg int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", firstArg+len(args)-1)
	}
	if q.Subject != "" {
		conds = append(conds, "subject = "+next(q.Subject))
	}
	if len(q.TopicsAny) > 0 {
		conds = append(conds, "topics && "+next(q.TopicsAny)+"::text[]")
	}
	if len(q.DocIDsAny) > 0 {
		conds = append(conds, "doc_id = ANY("+next(q.DocIDsAny)+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// Search returns at most TopK hits by descending cosine similarity. The score
// threshold is applied after ranking.
func (s *PgVectorStore) Search(ctx context.Context, q models.SearchQuery) ([]models.SearchHit, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}
	topK := q.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	qvec, err := s.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qvec) != s.dim {
		return nil, fmt.Errorf("%w: query embedding", ErrDimensionMismatch)
	}

	where, filterArgs := buildFilter(q, 2)
	args := append([]any{pgvector.NewVector(qvec)}, filterArgs...)
	args = append(args, topK)
	sqlq := fmt.Sprintf(`
		SELECT id, subject, topics, s3_uri, doc_id, page, chunk_id, title, text,
		       1 - (embedding <=> $1) AS score
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, s.table(), where, len(args))

	rows, err := s.db.QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	hits := make([]models.SearchHit, 0, topK)
	for rows.Next() {
		var h models.SearchHit
		if err := rows.Scan(&h.PointID, &h.Subject, s.typeMap.SQLScanner(&h.Topics), &h.S3URI, &h.DocID,
			&h.Page, &h.ChunkID, &h.Title, &h.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		if q.ScoreThreshold != nil && h.Score < *q.ScoreThreshold {
			continue
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}

func (s *PgVectorStore) DeleteByDoc(ctx context.Context, docID string) error {
	if strings.TrimSpace(docID) == "" {
		return ErrMissingDocID
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE doc_id = $1`, s.table()), docID)
	if err != nil {
		return fmt.Errorf("delete doc %s: %w", docID, err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info("deleted document points", "doc_id", docID, "points", n)
	return nil
}

// Count is exact. An empty subject counts the whole collection.
func (s *PgVectorStore) Count(ctx context.Context, subject string) (int64, error) {
	var (
		n   int64
		err error
	)
	if subject == "" {
		err = s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table())).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE subject = $1`, s.table()), subject).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
