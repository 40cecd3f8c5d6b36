package ingestion_engine

import "errors"

var (
	ErrJobNotFound     = errors.New("ingestion job not found")
	ErrInvalidMode     = errors.New("invalid ingestion mode")
	ErrNoDocIDs        = errors.New("mode selected requires doc_ids")
	ErrTooManyJobs     = errors.New("too many ingestion jobs running")
	ErrSubjectRequired = errors.New("subject is required")
)
