package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/vectorstore"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type VectorHandler struct {
	store  core.VectorStore
	logger *slog.Logger
}

func NewVectorHandler(store core.VectorStore, logger *slog.Logger) *VectorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorHandler{store: store, logger: logger}
}

func (h *VectorHandler) Search(w http.ResponseWriter, r *http.Request) {
	var q models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	hits, err := h.store.Search(r.Context(), q)
	if errors.Is(err, vectorstore.ErrEmptyQuery) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("vector search failed", "error", err)
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (h *VectorHandler) Count(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	n, err := h.store.Count(r.Context(), subject)
	if err != nil {
		h.logger.Error("vector count failed", "subject", subject, "error", err)
		http.Error(w, "count failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (h *VectorHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "doc_id")
	if err := h.store.DeleteByDoc(r.Context(), docID); err != nil {
		h.logger.Error("delete document vectors failed", "doc_id", docID, "error", err)
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
