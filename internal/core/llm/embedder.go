// Package llm provides the process-wide embedding provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// documentEmbedder is satisfied by langchaingo embedders and GeminiEmbedder.
type documentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Embedder validates count and width of every vector a backend returns.
type Embedder struct {
	backend   documentEmbedder
	dimension int
	modelName string
}

var _ core.EmbeddingProvider = (*Embedder)(nil)

func newEmbedder(backend documentEmbedder, dim int, model string) *Embedder {
	return &Embedder{backend: backend, dimension: dim, modelName: model}
}

// NewEmbedder creates the embedder selected by EMBED_PROVIDER. Call it once and
// share the result.
func NewEmbedder(ctx context.Context, cfg *config.Config) (*Embedder, error) {
	var (
		backend documentEmbedder
		model   = cfg.EmbedModel
		err     error
	)
	switch cfg.EmbedProvider {
	case config.EmbedProviderGemini:
		if model == "" {
			model = defaultGeminiModel
		}
		backend, err = NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, model, cfg.EmbedDim)
	case config.EmbedProviderOllama:
		if model == "" {
			model = defaultOllamaModel
		}
		backend, err = newOllamaEmbedder(model, cfg.OllamaHost)
	case config.EmbedProviderOpenAI:
		if model == "" {
			model = defaultOpenAIModel
		}
		backend, err = newOpenAIEmbedder(model, cfg.OpenAIAPIKey)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("embedder ready", "provider", cfg.EmbedProvider, "model", model, "dimension", cfg.EmbedDim)
	return newEmbedder(backend, cfg.EmbedDim, model), nil
}

func (e *Embedder) Dimension() int { return e.dimension }
func (e *Embedder) Model() string  { return e.modelName }

// EmbedTexts returns one vector per text, in order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := e.backend.EmbedDocuments(ctx, texts)
	duration := time.Since(start)
	if err != nil {
		slog.Warn("embedding failed", "model", e.modelName, "texts", len(texts), "duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("%w: embedding %d has %d, want %d", ErrDimensionMismatch, i, len(v), e.dimension)
		}
	}

	slog.Debug("embedding complete", "model", e.modelName, "texts", len(texts), "duration_ms", duration.Milliseconds())
	return vectors, nil
}

// EmbedQuery embeds one search query. Backends that distinguish queries from
// documents (Gemini task types) embed it as a query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.backend.EmbedQuery(ctx, text)
	if err != nil {
		slog.Warn("query embedding failed", "model", e.modelName, "error", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(v) != e.dimension {
		return nil, fmt.Errorf("%w: query embedding has %d, want %d", ErrDimensionMismatch, len(v), e.dimension)
	}
	return v, nil
}

// Close releases the backend client when it holds one.
func (e *Embedder) Close() error {
	if c, ok := e.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
