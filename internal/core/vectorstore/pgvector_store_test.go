package vectorstore

import (
	"context"
	"database/sql"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/testpg"
)

// hashEmbedder maps each word to a bucket so that texts sharing words are close.
type hashEmbedder struct {
	dim     int
	calls   atomic.Int32
	queries atomic.Int32
}

func (e *hashEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.queries.Add(1)
	return e.vector(text), nil
}

func (e *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(e.dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		norm = 1
	}
	for j := range v {
		v[j] = float32(float64(v[j]) / math.Sqrt(norm))
	}
	return v
}

func (e *hashEmbedder) Dimension() int { return e.dim }
func (e *hashEmbedder) Model() string  { return "hash" }

func TestNewPgVectorStore_RejectsBadCollection(t *testing.T) {
	for _, name := range []string{"", "Academia", "drop table;", "1docs", strings.Repeat("a", 60)} {
		_, err := NewPgVectorStore(nil, &hashEmbedder{dim: 8}, name, nil)
		assert.ErrorIs(t, err, ErrInvalidCollection, name)
	}
	s, err := NewPgVectorStore(nil, &hashEmbedder{dim: 8}, "academia_docs", nil)
	require.NoError(t, err)
	assert.Equal(t, `"academia_docs"`, s.table())
}

func TestBuildFilter(t *testing.T) {
	threshold := 0.5
	tests := []struct {
		name      string
		q         models.SearchQuery
		wantWhere string
		wantArgs  int
	}{
		{name: "no filters", q: models.SearchQuery{Text: "x", ScoreThreshold: &threshold}},
		{name: "empty slices ignored", q: models.SearchQuery{TopicsAny: []string{}, DocIDsAny: []string{}}},
		{
			name:      "subject only",
			q:         models.SearchQuery{Subject: "Math"},
			wantWhere: "WHERE subject = $2",
			wantArgs:  1,
		},
		{
			name:      "all filters",
			q:         models.SearchQuery{Subject: "Math", TopicsAny: []string{"limits"}, DocIDsAny: []string{"d1", "d2"}},
			wantWhere: "WHERE subject = $2 AND topics && $3::text[] AND doc_id = ANY($4)",
			wantArgs:  3,
		},
		{
			name:      "doc ids only",
			q:         models.SearchQuery{DocIDsAny: []string{"d1"}},
			wantWhere: "WHERE doc_id = ANY($2)",
			wantArgs:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildFilter(tt.q, 2)
			assert.Equal(t, tt.wantWhere, where)
			assert.Len(t, args, tt.wantArgs)
		})
	}
}

func TestUpsertChunks_RejectsEmptyDocID(t *testing.T) {
	emb := &hashEmbedder{dim: 8}
	s, err := NewPgVectorStore(nil, emb, "academia_docs", nil)
	require.NoError(t, err)

	_, err = s.UpsertChunks(context.Background(), []models.Chunk{{Subject: "Math", Text: "x"}}, 10)
	assert.ErrorIs(t, err, ErrMissingDocID)
	assert.Zero(t, emb.calls.Load(), "nothing is embedded for an invalid batch")

	n, err := s.UpsertChunks(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSearch_EmptyQuery(t *testing.T) {
	s, err := NewPgVectorStore(nil, &hashEmbedder{dim: 8}, "academia_docs", nil)
	require.NoError(t, err)
	_, err = s.Search(context.Background(), models.SearchQuery{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestPgVectorStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("pgx", testpg.DSN(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	emb := &hashEmbedder{dim: 16}
	store, err := NewPgVectorStore(db, emb, "academia_docs", nil)
	require.NoError(t, err)
	require.NoError(t, store.InitStore(ctx))
	require.NoError(t, store.InitStore(ctx), "init is idempotent")

	chunks := []models.Chunk{
		{Subject: "Math", Topics: []string{"limits"}, S3URI: "s3://b/a.pdf", DocID: "doc-a", ChunkID: 0, Title: "a.pdf", Text: "limits of sequences"},
		{Subject: "Math", S3URI: "s3://b/a.pdf", DocID: "doc-a", ChunkID: 1, Title: "a.pdf", Text: "continuity and derivatives"},
		{Subject: "Physics", S3URI: "s3://b/b.pdf", DocID: "doc-b", ChunkID: 0, Title: "b.pdf", Text: "newton laws of motion"},
	}
	n, err := store.UpsertChunks(ctx, chunks, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int32(2), emb.calls.Load(), "one embedding call per batch")

	hits, err := store.Search(ctx, models.SearchQuery{Text: "limits of sequences", TopK: 10, DocIDsAny: []string{"doc-a"}})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int32(1), emb.queries.Load(), "searches embed the text as a query")
	assert.Equal(t, "limits of sequences", hits[0].Text)
	assert.Equal(t, "doc-a", hits[0].DocID)
	assert.Equal(t, "Math", hits[0].Subject)
	assert.Equal(t, []string{"limits"}, hits[0].Topics)
	assert.Equal(t, "s3://b/a.pdf", hits[0].S3URI)
	assert.Equal(t, "a.pdf", hits[0].Title)
	assert.NotEmpty(t, hits[0].PointID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

	hits, err = store.Search(ctx, models.SearchQuery{Text: "motion", TopK: 10, Subject: "Physics", TopicsAny: []string{"limits"}})
	require.NoError(t, err)
	assert.Empty(t, hits, "filters are combined with AND")

	threshold := 0.99
	hits, err = store.Search(ctx, models.SearchQuery{Text: "limits of sequences", TopK: 10, ScoreThreshold: &threshold})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	total, err := store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	require.NoError(t, store.DeleteByDoc(ctx, "doc-a"))
	mathCount, err := store.Count(ctx, "Math")
	require.NoError(t, err)
	assert.Zero(t, mathCount)
	total, err = store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	// reopening with another width must fail instead of corrupting the collection
	other, err := NewPgVectorStore(db, &hashEmbedder{dim: 32}, "academia_docs", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, other.InitStore(ctx), ErrDimensionMismatch)
}
