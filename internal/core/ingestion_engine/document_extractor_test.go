package ingestion_engine

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTextExtractor_FailsSoft(t *testing.T) {
	e := NewTextExtractor(false)
	ctx := context.Background()

	assert.Empty(t, e.ExtractText(ctx, nil, "application/pdf"))
	assert.Empty(t, e.ExtractText(ctx, []byte("%PDF-1.7 truncated garbage"), "application/pdf"))
}

func TestTextExtractor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, NewTextExtractor(false).ExtractText(ctx, []byte("%PDF-1.4 garbage"), "application/pdf"))
}

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF(nil, "application/pdf"))
	assert.True(t, isPDF([]byte("%PDF-1.4"), ""))
	assert.False(t, isPDF([]byte("hello"), "text/plain"))
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a\x00b\xff", "ab"},
		{"plain text", "plain text"},
		{"ecuación\x00 diferencial", "ecuación diferencial"},
		{"\xc3\x28", "("},
		{"", ""},
	}
	for _, tt := range tests {
		got := cleanText(tt.in)
		assert.Equal(t, tt.want, got)
		assert.True(t, utf8.ValidString(got))
	}
}
