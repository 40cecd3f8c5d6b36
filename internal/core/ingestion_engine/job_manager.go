package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// JobManager creates ingestion jobs and runs each one on a bounded pool.
//
// docs:      document registry; only document status is written.
// jobs:      job persistence with compare-and-set transitions.
// obj:       object storage the raw files are read from.
// store:     vector collection chunks are written to.
// extractor: bytes -> text.
type JobManager struct {
	docs      core.DocumentRegistry
	jobs      core.JobStore
	obj       core.ObjectClient
	store     core.VectorStore
	extractor core.DocumentExtractor
	cfg       IngestConfig
	logger    *slog.Logger

	pool     *ants.Pool
	active   atomic.Int32
	subjects subjectLocks

	baseCtx context.Context
	stop    context.CancelFunc

	now   func() time.Time
	newID func() string
}

func NewJobManager(
	docs core.DocumentRegistry,
	jobs core.JobStore,
	obj core.ObjectClient,
	store core.VectorStore,
	extractor core.DocumentExtractor,
	cfg IngestConfig,
	logger *slog.Logger,
) (*JobManager, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := ants.NewPool(cfg.MaxConcurrentJobs,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			logger.Error("ingestion worker panicked", "panic", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create job pool: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	return &JobManager{
		docs:      docs,
		jobs:      jobs,
		obj:       obj,
		store:     store,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		subjects:  subjectLocks{locks: map[string]chan struct{}{}},
		baseCtx:   ctx,
		stop:      stop,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// Start computes the candidate set, persists a queued job and hands it to the
// pool. It returns without waiting for any document to be processed. When the
// pool is full nothing is persisted and ErrTooManyJobs is returned.
func (m *JobManager) Start(ctx context.Context, subject string, req models.IngestionRequest, createdBy string) (*models.IngestionJob, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, ErrSubjectRequired
	}
	if req.Mode == "" {
		req.Mode = models.ModeNew
	}
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
	if req.Mode == models.ModeSelected && len(req.DocIDs) == 0 {
		return nil, ErrNoDocIDs
	}

	candidates, err := m.docs.ListDocuments(ctx, req.Mode.Filter(subject, req.DocIDs))
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	ids := make([]string, len(candidates))
	for i, d := range candidates {
		ids[i] = d.ID
	}

	job := &models.IngestionJob{
		ID:           m.newID(),
		SubjectSlug:  subject,
		Status:       models.JobQueued,
		DocsTotal:    len(ids),
		CreatedBy:    createdBy,
		Request:      req,
		CandidateIDs: ids,
		CreatedAt:    m.now().UTC(),
	}

	ready := make(chan models.IngestionJob, 1)
	m.active.Add(1)
	err = m.pool.Submit(func() {
		defer m.active.Add(-1)
		j, ok := <-ready
		if !ok {
			return
		}
		m.run(m.baseCtx, &j)
	})
	if err != nil {
		m.active.Add(-1)
	}
	if errors.Is(err, ants.ErrPoolOverload) {
		return nil, ErrTooManyJobs
	}
	if err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}

	if err := m.jobs.CreateJob(ctx, job); err != nil {
		close(ready)
		return nil, fmt.Errorf("create job: %w", err)
	}
	ready <- *job

	m.logger.Info("ingestion job queued",
		"job_id", job.ID, "subject", subject, "mode", req.Mode, "docs_total", job.DocsTotal)
	return job, nil
}

func (m *JobManager) Get(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// List returns the subject's jobs, newest first.
func (m *JobManager) List(ctx context.Context, subject string) ([]models.IngestionJob, error) {
	return m.jobs.ListJobsBySubject(ctx, subject)
}

// Cancel is advisory: a running job notices it before its next document.
func (m *JobManager) Cancel(ctx context.Context, jobID string) (bool, error) {
	ok, err := m.jobs.TransitionJob(ctx, jobID,
		[]models.JobStatus{models.JobQueued, models.JobRunning}, models.JobCanceled, nil)
	if err != nil {
		return false, err
	}
	if ok {
		m.logger.Info("ingestion job cancel requested", "job_id", jobID)
	}
	return ok, nil
}

// Running is the number of accepted jobs whose worker has not returned yet.
func (m *JobManager) Running() int {
	return int(m.active.Load())
}

// Close stops accepting jobs and waits up to timeout for running ones. Jobs still
// running when their context ends are failed as interrupted.
func (m *JobManager) Close(timeout time.Duration) error {
	m.stop()
	return m.pool.ReleaseTimeout(timeout)
}

func (m *JobManager) run(ctx context.Context, job *models.IngestionJob) {
	logger, logPath, closeLog, err := config.JobLogger(m.logger, m.cfg.JobLogsDir, job.ID)
	if err != nil {
		m.logger.Warn("job log file unavailable", "job_id", job.ID, "error", err)
	}
	defer func() { _ = closeLog() }()
	logger = logger.With("job_id", job.ID, "subject", job.SubjectSlug)

	if logPath != "" {
		if err := m.jobs.SetJobLogsURL(ctx, job.ID, logPath); err != nil {
			logger.Warn("failed to record logs url", "error", err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("ingestion job panicked", "panic", r)
			m.fail(logger, job.ID, fmt.Sprintf("internal panic: %v", r))
		}
	}()

	unlock, err := m.subjects.lock(ctx, job.SubjectSlug)
	if err != nil {
		logger.Warn("job abandoned while waiting for subject", "error", err)
		return
	}
	defer unlock()

	started, err := m.jobs.TransitionJob(ctx, job.ID, []models.JobStatus{models.JobQueued}, models.JobRunning, nil)
	if err != nil {
		logger.Error("failed to start job", "error", err)
		return
	}
	if !started {
		logger.Info("job canceled before it started")
		return
	}
	logger.Info("ingestion job running", "docs_total", job.DocsTotal)

	docsDone, vectors, err := m.process(ctx, logger, job)
	if err != nil {
		logger.Error("ingestion job failed", "error", err, "docs_done", docsDone, "vectors", vectors)
		m.fail(logger, job.ID, err.Error())
		return
	}

	completed, err := m.jobs.TransitionJob(ctx, job.ID, []models.JobStatus{models.JobRunning}, models.JobCompleted, nil)
	switch {
	case err != nil:
		logger.Error("failed to complete job", "error", err)
	case !completed:
		logger.Info("ingestion job stopped after cancel", "docs_done", docsDone, "vectors", vectors)
	default:
		logger.Info("ingestion job completed", "docs_done", docsDone, "vectors", vectors)
	}
}

// process walks the candidate set fixed at creation. Document-level problems are
// absorbed; the returned error is job-level.
func (m *JobManager) process(ctx context.Context, logger *slog.Logger, job *models.IngestionJob) (int, int, error) {
	opts := job.Request.EffectiveOptions()
	if opts.EmbedModel != "" && m.cfg.EmbedModel != "" && opts.EmbedModel != m.cfg.EmbedModel {
		logger.Warn("requested embed_model differs from the configured embedder, using the embedder",
			"requested", opts.EmbedModel, "embedder", m.cfg.EmbedModel)
	}

	if err := m.store.InitStore(ctx); err != nil {
		return 0, 0, fmt.Errorf("init vector store: %w", err)
	}

	category := SubjectCategory(job.SubjectSlug)
	docsDone, vectors := 0, 0
	for _, docID := range job.CandidateIDs {
		if err := ctx.Err(); err != nil {
			return docsDone, vectors, fmt.Errorf("interrupted: %w", err)
		}
		canceled, err := m.isCanceled(ctx, job.ID)
		if err != nil {
			return docsDone, vectors, fmt.Errorf("read job status: %w", err)
		}
		if canceled {
			logger.Info("cancel observed, stopping before next document", "next_doc_id", docID)
			return docsDone, vectors, nil
		}

		vectors += m.processDocument(ctx, logger.With("doc_id", docID), docID, category, opts)
		docsDone++

		if err := m.jobs.UpdateJobProgress(ctx, job.ID, docsDone, vectors); err != nil {
			return docsDone, vectors, fmt.Errorf("persist progress: %w", err)
		}
	}
	return docsDone, vectors, nil
}

func (m *JobManager) isCanceled(ctx context.Context, jobID string) (bool, error) {
	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, ErrJobNotFound
	}
	return job.Status == models.JobCanceled, nil
}

// fail writes with a fresh context so a shutdown still records the failure.
func (m *JobManager) fail(logger *slog.Logger, jobID, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ok, err := m.jobs.TransitionJob(ctx, jobID, []models.JobStatus{models.JobRunning}, models.JobFailed, &msg)
	if err != nil {
		logger.Error("failed to mark job failed", "error", err)
		return
	}
	if !ok {
		logger.Info("job already left running, failure not recorded", "reason", msg)
	}
}

// subjectLocks serializes jobs of the same subject. Entries are never removed;
// the subject set is small.
type subjectLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func (s *subjectLocks) lock(ctx context.Context, subject string) (func(), error) {
	s.mu.Lock()
	ch, ok := s.locks[subject]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[subject] = ch
	}
	s.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
