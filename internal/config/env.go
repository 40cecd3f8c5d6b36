package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Embedding providers understood by the llm package.
const (
	EmbedProviderGemini = "gemini"
	EmbedProviderOllama = "ollama"
	EmbedProviderOpenAI = "openai"
)

type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	SslCertPath string `envconfig:"SSL_CERT_PATH"`

	AwsAccessKey string `envconfig:"AWS_ACCESS_KEY"`
	AwsSecretKey string `envconfig:"AWS_SECRET_KEY"`
	AwsRegion    string `envconfig:"AWS_REGION" default:"us-east-1"`
	BucketName   string `envconfig:"S3_BUCKET" default:"cetec-documents"`
	S3Endpoint   string `envconfig:"S3_ENDPOINT"` // MinIO or other S3-compatible endpoint

	EmbedProvider string `envconfig:"EMBED_PROVIDER" default:"gemini"`
	EmbedModel    string `envconfig:"EMBED_MODEL"`
	EmbedDim      int    `envconfig:"EMBED_DIM" default:"384"`
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OllamaHost    string `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`

	VectorCollection  string `envconfig:"VECTOR_COLLECTION" default:"academia_docs"`
	UpsertBatchSize   int    `envconfig:"UPSERT_BATCH_SIZE" default:"128"`
	MaxConcurrentJobs int    `envconfig:"MAX_CONCURRENT_JOBS" default:"4"`

	Port        string   `envconfig:"PORT" default:"8080"`
	CorsOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://localhost:8000"`
	JWTSecret   string   `envconfig:"JWT_SECRET"`

	LogFile    string `envconfig:"LOG_FILE"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"INFO"`
	JobLogsDir string `envconfig:"JOB_LOGS_DIR"`
}

// LoadConfig reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func LoadConfig(envPath string) (*Config, error) {
	if envPath == "" {
		envPath = ".env"
	}
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values envconfig cannot express as tags.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	switch c.EmbedProvider {
	case EmbedProviderGemini, EmbedProviderOllama, EmbedProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("EMBED_PROVIDER %q is not one of gemini, ollama, openai", c.EmbedProvider))
	}
	if c.EmbedDim <= 0 {
		errs = append(errs, fmt.Errorf("EMBED_DIM must be positive, got %d", c.EmbedDim))
	}
	if c.UpsertBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("UPSERT_BATCH_SIZE must be positive, got %d", c.UpsertBatchSize))
	}
	if c.MaxConcurrentJobs <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_JOBS must be positive, got %d", c.MaxConcurrentJobs))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL onto a slog level; unknown values mean INFO.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
