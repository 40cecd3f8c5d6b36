package db

import "github.com/markdave123-py/contexta-ingest/internal/core"

var ErrDocumentNotFound = core.ErrDocumentNotFound
