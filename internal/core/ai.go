package core

import "context"

// EmbeddingProvider turns texts into fixed-width vectors, one per input, in input order.
// A single instance is created per process and shared by every caller.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a search query, which some models encode differently from documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}
