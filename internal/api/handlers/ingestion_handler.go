package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/contexta-ingest/internal/api/middlewares"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type IngestionHandler struct {
	ingestor ingestion_engine.Ingestor
	logger   *slog.Logger
}

func NewIngestionHandler(ing ingestion_engine.Ingestor, logger *slog.Logger) *IngestionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionHandler{ingestor: ing, logger: logger}
}

// StartIngestion queues a job for the subject and answers 202 with the job.
func (h *IngestionHandler) StartIngestion(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	userID, _ := middleware.UserID(r.Context())

	// an empty body means mode new with default options
	req := models.IngestionRequest{Mode: models.ModeNew}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.ingestor.Start(r.Context(), subject, req, userID)
	switch {
	case errors.Is(err, ingestion_engine.ErrInvalidMode),
		errors.Is(err, ingestion_engine.ErrNoDocIDs),
		errors.Is(err, ingestion_engine.ErrSubjectRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ingestion_engine.ErrTooManyJobs):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	case err != nil:
		h.logger.Error("start ingestion failed", "subject", subject, "error", err)
		http.Error(w, "failed to start ingestion", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

func (h *IngestionHandler) ListIngestions(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	jobs, err := h.ingestor.List(r.Context(), subject)
	if err != nil {
		h.logger.Error("list ingestions failed", "subject", subject, "error", err)
		http.Error(w, "failed to list ingestions", http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []models.IngestionJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *IngestionHandler) GetIngestion(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := h.ingestor.Get(r.Context(), jobID)
	if errors.Is(err, ingestion_engine.ErrJobNotFound) {
		http.Error(w, "ingestion job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("get ingestion failed", "job_id", jobID, "error", err)
		http.Error(w, "failed to get ingestion", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *IngestionHandler) CancelIngestion(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	accepted, err := h.ingestor.Cancel(r.Context(), jobID)
	if err != nil {
		h.logger.Error("cancel ingestion failed", "job_id", jobID, "error", err)
		http.Error(w, "failed to cancel ingestion", http.StatusInternalServerError)
		return
	}
	if !accepted {
		http.Error(w, "ingestion job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Cancel requested"})
}
