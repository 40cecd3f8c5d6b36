package vectorstore

import "errors"

var (
	ErrInvalidCollection = errors.New("invalid collection name")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrMissingDocID      = errors.New("chunk has empty doc_id")
	ErrEmptyQuery        = errors.New("search query text is empty")
)
