package ingestion_engine

import (
	"strings"
	"unicode/utf8"
)

// ChunkText slices text into fixed-width pieces of size characters. The result
// has ceil(len/size) pieces and only the last may be shorter. Whitespace-only
// pieces are kept; see dropBlank.
func ChunkText(text string, size int) []string {
	if size <= 0 {
		size = 1000
	}
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return nil
	}

	out := make([]string, 0, (n+size-1)/size)
	start, count := 0, 0
	for i := range text {
		if count == size {
			out = append(out, text[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(out, text[start:])
}

func dropBlank(pieces []string) []string {
	out := pieces[:0:0]
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
