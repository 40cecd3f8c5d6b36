package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

var _ core.DocumentExtractor = (*TextExtractor)(nil)

// TextExtractor reads PDFs with ledongthuc/pdf and falls back to docconv for
// other types and for PDFs the pure-Go reader cannot handle.
type TextExtractor struct {
	useReadability bool
}

func NewTextExtractor(useReadability bool) *TextExtractor {
	return &TextExtractor{useReadability: useReadability}
}

// ExtractText fails soft: any parse error or a canceled ctx yields "". The
// result is valid UTF-8 without NUL bytes, which Postgres text rejects.
func (e *TextExtractor) ExtractText(ctx context.Context, data []byte, contentType string) string {
	if len(data) == 0 {
		return ""
	}

	done := make(chan string, 1)
	go func() {
		done <- e.extract(data, contentType)
	}()

	select {
	case text := <-done:
		return cleanText(text)
	case <-ctx.Done():
		slog.Warn("extraction abandoned", "content_type", contentType, "error", ctx.Err())
		return ""
	}
}

func (e *TextExtractor) extract(data []byte, contentType string) string {
	if isPDF(data, contentType) {
		t, err := safely(func() (string, error) { return extractPDF(data) })
		if err == nil && strings.TrimSpace(t) != "" {
			return t
		}
		slog.Debug("pdf reader produced no text, trying docconv", "error", err)
		if contentType == "" {
			contentType = "application/pdf"
		}
	}

	t, err := safely(func() (string, error) {
		res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
		if err != nil {
			return "", err
		}
		return res.Body, nil
	})
	if err != nil {
		slog.Warn("docconv: extraction failed", "content_type", contentType, "error", err)
		return ""
	}
	return t
}

func isPDF(data []byte, contentType string) bool {
	return strings.EqualFold(contentType, "application/pdf") || bytes.HasPrefix(data, []byte("%PDF-"))
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// cleanText drops invalid UTF-8 sequences and NULs; PDF fonts without a
// ToUnicode map commonly produce both.
func cleanText(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.ReplaceAll(s, "\x00", "")
}

// safely turns a parser panic into an error; both readers panic on some malformed input.
func safely(fn func() (string, error)) (s string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()
	return fn()
}
