package ingestion_engine

// IngestConfig tunes the job manager.
//
// MaxConcurrentJobs: jobs running at once; Start rejects beyond it.
// BatchSize:         chunks per embedding call during upsert.
// Bucket:            bucket for storage keys that carry none.
// EmbedModel:        model of the process embedder, compared with request options.
// JobLogsDir:        directory for per-job log files; empty disables them.
type IngestConfig struct {
	MaxConcurrentJobs int
	BatchSize         int
	Bucket            string
	EmbedModel        string
	JobLogsDir        string
}

func (c IngestConfig) withDefaults() IngestConfig {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 128
	}
	return c
}
