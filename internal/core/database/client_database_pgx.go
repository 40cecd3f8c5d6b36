package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type DatabaseClient struct {
	db      *sql.DB
	typeMap *pgtype.Map
}

var _ DbClient = (*DatabaseClient)(nil)

// NewDatabaseClient opens the pool, pings and bootstraps the schema.
// sslCertPath is optional; when set the connection verifies the server CA.
func NewDatabaseClient(ctx context.Context, databaseURL, sslCertPath string) (*DatabaseClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := databaseURL
	if sslCertPath != "" {
		if _, err := os.Stat(sslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
		}
		u, err := url.Parse(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", sslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db, typeMap: pgtype.NewMap()}, nil
}

// DB exposes the pool so other Postgres-backed components share one connection set.
func (c *DatabaseClient) DB() *sql.DB {
	return c.db
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Documents

// CreateDocument is used by the upload flow and by tests to seed the registry.
func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, subject_slug, file_name, storage_key, content_type, size, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.SubjectSlug, doc.FileName, doc.StorageKey, doc.ContentType, doc.Size, string(doc.Status))
	return err
}

const documentColumns = `id, subject_slug, file_name, storage_key, content_type, size, status, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (models.Document, error) {
	var (
		d      models.Document
		status string
	)
	err := row.Scan(&d.ID, &d.SubjectSlug, &d.FileName, &d.StorageKey, &d.ContentType, &d.Size, &status, &d.CreatedAt, &d.UpdatedAt)
	d.Status = models.DocumentStatus(status)
	return d, err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDocuments returns the documents matching the filter, oldest first so a
// job processes uploads in arrival order.
func (c *DatabaseClient) ListDocuments(ctx context.Context, f models.DocumentFilter) ([]models.Document, error) {
	var (
		where = []string{"subject_slug = $1"}
		args  = []any{f.SubjectSlug}
	)
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.IDs != nil {
		args = append(args, f.IDs)
		where = append(where, fmt.Sprintf("id = ANY($%d)", len(args)))
	}

	q := `SELECT ` + documentColumns + ` FROM documents WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at ASC, id ASC`
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, string(status))
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return nil
}

// Ingestion jobs

func (c *DatabaseClient) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	req, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("encode job request: %w", err)
	}
	candidates := job.CandidateIDs
	if candidates == nil {
		candidates = []string{}
	}
	const q = `
		INSERT INTO ingestion_jobs
			(id, subject_slug, status, docs_total, docs_done, vectors, logs_url, created_by, request, candidate_ids, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = c.db.ExecContext(ctx, q,
		job.ID, job.SubjectSlug, string(job.Status), job.DocsTotal, job.DocsDone, job.Vectors,
		job.LogsURL, job.CreatedBy, req, candidates, job.CreatedAt)
	return err
}

const jobColumns = `id, subject_slug, status, docs_total, docs_done, vectors, logs_url, error, created_by, request, candidate_ids, created_at, started_at, finished_at`

func (c *DatabaseClient) scanJob(row interface{ Scan(...any) error }) (models.IngestionJob, error) {
	var (
		j       models.IngestionJob
		status  string
		request []byte
	)
	err := row.Scan(&j.ID, &j.SubjectSlug, &status, &j.DocsTotal, &j.DocsDone, &j.Vectors,
		&j.LogsURL, &j.Error, &j.CreatedBy, &request, c.typeMap.SQLScanner(&j.CandidateIDs),
		&j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if err != nil {
		return j, err
	}
	j.Status = models.JobStatus(status)
	if len(request) > 0 {
		if err := json.Unmarshal(request, &j.Request); err != nil {
			return j, fmt.Errorf("decode job request: %w", err)
		}
	}
	return j, nil
}

func (c *DatabaseClient) GetJob(ctx context.Context, id string) (*models.IngestionJob, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM ingestion_jobs WHERE id = $1`, id)
	j, err := c.scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *DatabaseClient) ListJobsBySubject(ctx context.Context, subject string) ([]models.IngestionJob, error) {
	q := `SELECT ` + jobColumns + ` FROM ingestion_jobs WHERE subject_slug = $1 ORDER BY created_at DESC, id DESC`
	rows, err := c.db.QueryContext(ctx, q, subject)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []models.IngestionJob
	for rows.Next() {
		j, err := c.scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// TransitionJob is a compare-and-set on status. started_at is stamped on entry
// to running and finished_at on entry to any terminal state.
func (c *DatabaseClient) TransitionJob(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus, errMsg *string) (bool, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}
	const q = `
		UPDATE ingestion_jobs
		SET status      = $3,
		    error       = COALESCE($4, error),
		    started_at  = CASE WHEN $3 = 'running' THEN now() ELSE started_at END,
		    finished_at = CASE WHEN $3 IN ('completed', 'failed', 'canceled') THEN now() ELSE finished_at END
		WHERE id = $1 AND status = ANY($2)
	`
	res, err := c.db.ExecContext(ctx, q, id, fromStr, string(to), errMsg)
	if err != nil {
		return false, fmt.Errorf("transition job %s to %s: %w", id, to, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateJobProgress never lowers the counters, so concurrent readers only see
// non-decreasing progress.
func (c *DatabaseClient) UpdateJobProgress(ctx context.Context, id string, docsDone, vectors int) error {
	const q = `
		UPDATE ingestion_jobs
		SET docs_done = GREATEST(docs_done, $2),
		    vectors   = GREATEST(vectors, $3)
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, docsDone, vectors)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update job progress: job %s not found", id)
	}
	return nil
}

func (c *DatabaseClient) SetJobLogsURL(ctx context.Context, id string, logsURL string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE ingestion_jobs SET logs_url = $2 WHERE id = $1`, id, logsURL)
	return err
}
