package models

import (
	"time"
)

// DocumentStatus is the ingestion state of an uploaded document.
type DocumentStatus string

const (
	DocumentUploaded DocumentStatus = "uploaded"
	DocumentIngested DocumentStatus = "ingested"
	DocumentFailed   DocumentStatus = "failed"
)

// Document represents a file uploaded for a subject. Only Status is written by the ingestion core.
type Document struct {
	ID          string         `db:"id" json:"id"`
	SubjectSlug string         `db:"subject_slug" json:"subject_slug"`
	FileName    string         `db:"file_name" json:"filename"`
	StorageKey  string         `db:"storage_key" json:"s3_key"` // bare key, s3:// URI or S3 https URL
	ContentType string         `db:"content_type" json:"mime"`
	Size        int64          `db:"size" json:"size"`
	Status      DocumentStatus `db:"status" json:"status"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// DocumentFilter selects documents of one subject by status and, optionally, by id.
type DocumentFilter struct {
	SubjectSlug string
	Statuses    []DocumentStatus
	IDs         []string
}

// IngestionMode selects which documents of a subject a job processes.
type IngestionMode string

const (
	ModeNew      IngestionMode = "new"
	ModeSelected IngestionMode = "selected"
	ModeAll      IngestionMode = "all"
	ModeReingest IngestionMode = "reingest"
)

// Valid reports whether m is a known mode.
func (m IngestionMode) Valid() bool {
	switch m {
	case ModeNew, ModeSelected, ModeAll, ModeReingest:
		return true
	}
	return false
}

// Filter returns the candidate-set filter for mode m on a subject.
func (m IngestionMode) Filter(subject string, docIDs []string) DocumentFilter {
	f := DocumentFilter{SubjectSlug: subject}
	switch m {
	case ModeSelected:
		f.Statuses = []DocumentStatus{DocumentUploaded}
		f.IDs = docIDs
	case ModeAll:
		f.Statuses = []DocumentStatus{DocumentUploaded, DocumentIngested}
	case ModeReingest:
		f.Statuses = []DocumentStatus{DocumentIngested}
	default:
		f.Statuses = []DocumentStatus{DocumentUploaded}
	}
	return f
}

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 150
)

// IngestionOptions tunes a single ingestion request. Pointer fields separate
// "omitted" from an explicit zero value; use EffectiveOptions to read them.
type IngestionOptions struct {
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap *int   `json:"chunk_overlap,omitempty"`
	EmbedModel   string `json:"embed_model,omitempty"`
	Append       *bool  `json:"append,omitempty"`
}

// ResolvedOptions are the options a job actually runs with.
type ResolvedOptions struct {
	ChunkSize    int
	ChunkOverlap int
	// EmbedModel is empty unless the caller asked for a specific model.
	EmbedModel string
	Append     bool
}

// IngestionRequest is the caller's selection, stored verbatim on the job for audit.
type IngestionRequest struct {
	Mode    IngestionMode     `json:"mode"`
	DocIDs  []string          `json:"doc_ids,omitempty"`
	Options *IngestionOptions `json:"options,omitempty"`
}

// EffectiveOptions fills every omitted option with its default: chunk size
// 1000, overlap 150, append true.
func (r IngestionRequest) EffectiveOptions() ResolvedOptions {
	out := ResolvedOptions{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		Append:       true,
	}
	o := r.Options
	if o == nil {
		return out
	}
	if o.ChunkSize > 0 {
		out.ChunkSize = o.ChunkSize
	}
	if o.ChunkOverlap != nil {
		out.ChunkOverlap = max(*o.ChunkOverlap, 0)
	}
	if o.Append != nil {
		out.Append = *o.Append
	}
	out.EmbedModel = o.EmbedModel
	return out
}

// JobStatus is a state of the ingestion job state machine.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCanceled
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to JobStatus) bool {
	switch to {
	case JobRunning:
		return from == JobQueued
	case JobCompleted, JobFailed:
		return from == JobRunning
	case JobCanceled:
		return from == JobQueued || from == JobRunning
	}
	return false
}

// IngestionJob is the persisted record of one ingestion run.
type IngestionJob struct {
	ID           string           `db:"id" json:"job_id"`
	SubjectSlug  string           `db:"subject_slug" json:"subject_slug"`
	Status       JobStatus        `db:"status" json:"status"`
	DocsTotal    int              `db:"docs_total" json:"docs_total"`
	DocsDone     int              `db:"docs_done" json:"docs_done"`
	Vectors      int              `db:"vectors" json:"vectors"`
	LogsURL      *string          `db:"logs_url" json:"logs_url"`
	Error        *string          `db:"error" json:"error,omitempty"`
	CreatedBy    string           `db:"created_by" json:"created_by,omitempty"`
	Request      IngestionRequest `db:"request" json:"request"`
	CandidateIDs []string         `db:"candidate_ids" json:"-"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	StartedAt    *time.Time       `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time       `db:"finished_at" json:"finished_at,omitempty"`
}

// Chunk is one span of document text on its way into the vector store.
type Chunk struct {
	Subject string   `json:"subject"`
	Topics  []string `json:"topics"`
	S3URI   string   `json:"s3_uri"`
	DocID   string   `json:"doc_id"`
	Page    int      `json:"page"`
	ChunkID int      `json:"chunk_id"`
	Title   string   `json:"title"`
	Text    string   `json:"text"`
}

// SearchQuery is a filtered similarity query. Empty filters are ignored.
type SearchQuery struct {
	Text           string   `json:"query"`
	TopK           int      `json:"top_k"`
	Subject        string   `json:"subject,omitempty"`
	TopicsAny      []string `json:"topics_any,omitempty"`
	DocIDsAny      []string `json:"doc_ids_any,omitempty"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
}

// SearchHit is a normalized search result: payload plus score and point id.
type SearchHit struct {
	Score   float64 `json:"score"`
	PointID string  `json:"point_id"`
	Chunk
}
