package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", cfg.AwsRegion)
	assert.Equal(t, "academia_docs", cfg.VectorCollection)
	assert.Equal(t, EmbedProviderGemini, cfg.EmbedProvider)
	assert.Equal(t, 384, cfg.EmbedDim)
	assert.Equal(t, 128, cfg.UpsertBatchSize)
	assert.Equal(t, 4, cfg.MaxConcurrentJobs)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:8000"}, cfg.CorsOrigins)
}

func TestLoadConfig_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("DATABASE_URL=postgres://file/db\nVECTOR_COLLECTION=from_file\n"), 0o600))

	t.Setenv("DATABASE_URL", "postgres://env/db")
	// Register VECTOR_COLLECTION for cleanup; godotenv sets it from the file.
	t.Setenv("VECTOR_COLLECTION", "")
	require.NoError(t, os.Unsetenv("VECTOR_COLLECTION"))

	cfg, err := LoadConfig(envPath)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
	assert.Equal(t, "from_file", cfg.VectorCollection)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing database", mutate: func(c *Config) { c.DatabaseURL = " " }, wantErr: "DATABASE_URL"},
		{name: "unknown provider", mutate: func(c *Config) { c.EmbedProvider = "bert" }, wantErr: "EMBED_PROVIDER"},
		{name: "zero dimension", mutate: func(c *Config) { c.EmbedDim = 0 }, wantErr: "EMBED_DIM"},
		{name: "zero pool", mutate: func(c *Config) { c.MaxConcurrentJobs = 0 }, wantErr: "MAX_CONCURRENT_JOBS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				DatabaseURL:       "postgres://localhost/db",
				EmbedProvider:     EmbedProviderOllama,
				EmbedDim:          384,
				UpsertBatchSize:   64,
				MaxConcurrentJobs: 2,
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&Config{LogLevel: "debug"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "WARNING"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "verbose"}).SlogLevel())
}

func TestJobLogger_WritesToJobFile(t *testing.T) {
	var stderr, file bytes.Buffer
	base := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	dir := t.TempDir()
	logger, path, closeFn, err := JobLogger(base, dir, "job-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "job-1.log"), path)

	logger.Info("document ingested", "doc_id", "d1")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"doc_id":"d1"`)
	assert.True(t, strings.Contains(stderr.String(), "document ingested"))
	assert.Contains(t, file.String(), "document ingested")
}

func TestJobLogger_NoDir(t *testing.T) {
	base := slog.Default()
	logger, path, closeFn, err := JobLogger(base, "", "job-1")
	require.NoError(t, err)
	assert.Same(t, base, logger)
	assert.Empty(t, path)
	assert.NoError(t, closeFn())
}
