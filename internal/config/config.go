package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8000"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-pro"`

	// Optional text-only generator for merge and routing calls
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel  string `envconfig:"OPENAI_MODEL"`

	ChunkSeconds          float64       `envconfig:"CHUNK_SECONDS" default:"1200"`
	ReadinessPollInterval time.Duration `envconfig:"READINESS_POLL_INTERVAL" default:"2s"`
	ReadinessTimeout      time.Duration `envconfig:"READINESS_TIMEOUT" default:"0"`
	MaxConcurrentUnits    int           `envconfig:"MAX_CONCURRENT_UNITS" default:"4"`

	FFprobeBin  string `envconfig:"FFPROBE_BIN" default:"ffprobe"`
	FFmpegBin   string `envconfig:"FFMPEG_BIN" default:"ffmpeg"`
	PromptsFile string `envconfig:"PROMPTS_FILE"`

	UploadDir      string        `envconfig:"UPLOAD_DIR" default:"uploads"`
	ScratchTTL     time.Duration `envconfig:"SCRATCH_TTL" default:"6h"`
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"10m"`
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"4294967296"`

	// Knowledge store backends, first configured one wins:
	// Postgres, S3, MinIO, local directory.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"knowledge-base"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	MinIOEndpoint  string `envconfig:"MINIO_ENDPOINT"`
	MinIOAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinIOBucket    string `envconfig:"MINIO_BUCKET" default:"knowledge-base"`
	MinIOUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	KBDir string `envconfig:"KB_DIR" default:"knowledge_base"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("PROCMINER", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.ChunkSeconds <= 0 {
		errs = append(errs, errors.New("CHUNK_SECONDS must be positive"))
	}
	if c.ReadinessPollInterval <= 0 {
		errs = append(errs, errors.New("READINESS_POLL_INTERVAL must be positive"))
	}
	if c.ReadinessTimeout < 0 {
		errs = append(errs, errors.New("READINESS_TIMEOUT cannot be negative"))
	}
	if c.MaxConcurrentUnits < 1 {
		errs = append(errs, errors.New("MAX_CONCURRENT_UNITS must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// HasGemini reports whether the analysis backend is configured; serve refuses
// to start without it.
func (c *Config) HasGemini() bool {
	return c.GeminiAPIKey != ""
}

func (c *Config) HasPostgres() bool {
	return c.DatabaseURL != ""
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasMinIO() bool {
	return c.MinIOEndpoint != "" && c.MinIOAccessKey != "" && c.MinIOSecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// StoreBackend names the knowledge store selected by configuration presence
func (c *Config) StoreBackend() string {
	switch {
	case c.HasPostgres():
		return "postgres"
	case c.HasS3():
		return "s3"
	case c.HasMinIO():
		return "minio"
	default:
		return "local"
	}
}
