package core

import (
	"context"
)

// DocumentExtractor pulls plain text out of a raw document.
type DocumentExtractor interface {
	// ExtractText never fails: unreadable input yields "". The contentType hint
	// picks the parsing strategy.
	ExtractText(ctx context.Context, data []byte, contentType string) string
}
