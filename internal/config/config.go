// Package config provides configuration management for the Skald worker and
// retrieval core. Settings start from defaults, are optionally overlaid by a
// YAML file named in SKALD_CONFIG_FILE, and are finally overridden by
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable that points at an optional
// YAML overlay.
const ConfigFileEnv = "SKALD_CONFIG_FILE"

// Queue backends
const (
	BackendRedis = "redis"
	BackendSQS   = "sqs"
	BackendAMQP  = "amqp"
	BackendPGMQ  = "pgmq"
)

// Config holds all configuration settings for the Skald core.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Queue     QueueConfig     `yaml:"queue"`
	Redis     RedisConfig     `yaml:"redis"`
	SQS       SQSConfig       `yaml:"sqs"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	PGMQ      PGMQConfig      `yaml:"pgmq"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	DocConv   DocConvConfig   `yaml:"docconv"`
	Blob      BlobConfig      `yaml:"blob"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig contains database and storage configuration.
type DatabaseConfig struct {
	Driver       string `yaml:"driver" env:"DATABASE_DRIVER"` // postgres or sqlite (default: postgres)
	URL          string `yaml:"url" env:"DATABASE_URL"`
	SQLitePath   string `yaml:"sqlite_path" env:"SQLITE_PATH"` // (default: ./data/skald.db)
	MaxOpenConns int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
}

// QueueConfig contains the backend selector and the retry policy shared by
// every backend.
type QueueConfig struct {
	Backend              string        `yaml:"backend" env:"QUEUE_BACKEND"`
	MaxRetries           int           `yaml:"max_retries" env:"QUEUE_MAX_RETRIES"`
	VisibilityTimeout    time.Duration `yaml:"visibility_timeout" env:"QUEUE_VISIBILITY_TIMEOUT"`
	PollBackoff          time.Duration `yaml:"poll_backoff" env:"QUEUE_POLL_BACKOFF"`
	PollWait             time.Duration `yaml:"poll_wait" env:"QUEUE_POLL_WAIT"`
	BatchSize            int           `yaml:"batch_size" env:"QUEUE_BATCH_SIZE"`
	Workers              int           `yaml:"workers" env:"QUEUE_WORKERS"`
	StaleProcessingAfter time.Duration `yaml:"stale_processing_after" env:"QUEUE_STALE_PROCESSING_AFTER"`
}

// RedisConfig configures the local pub/sub backend.
type RedisConfig struct {
	URL     string `yaml:"url" env:"REDIS_URL"`
	Channel string `yaml:"channel" env:"REDIS_CHANNEL"`
}

// SQSConfig configures the cloud queue backend.
type SQSConfig struct {
	QueueURL string `yaml:"queue_url" env:"SQS_QUEUE_URL"`
	Region   string `yaml:"region" env:"AWS_REGION"`
	Endpoint string `yaml:"endpoint" env:"SQS_ENDPOINT"`
}

// AMQPConfig configures the broker backend. Dead-lettering relies on the
// broker's dead-letter exchange bound to Queue.
type AMQPConfig struct {
	URL                string `yaml:"url" env:"AMQP_URL"`
	Queue              string `yaml:"queue" env:"AMQP_QUEUE"`
	DeadLetterExchange string `yaml:"dead_letter_exchange" env:"AMQP_DEAD_LETTER_EXCHANGE"`
	Prefetch           int    `yaml:"prefetch" env:"AMQP_PREFETCH"`
}

// PGMQConfig configures the Postgres-backed queue. It shares DATABASE_URL.
type PGMQConfig struct {
	Queue           string `yaml:"queue" env:"PGMQ_QUEUE"`
	DeadLetterQueue string `yaml:"dead_letter_queue" env:"PGMQ_DEAD_LETTER_QUEUE"`
}

// LLMConfig contains text generation provider configuration.
type LLMConfig struct {
	Provider        string `yaml:"provider" env:"LLM_PROVIDER"` // openai, anthropic, ollama
	OpenAIAPIKey    string `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	OpenAIModel     string `yaml:"openai_model" env:"OPENAI_MODEL"`
	OpenAIBaseURL   string `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
	AnthropicAPIKey string `yaml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `yaml:"anthropic_model" env:"ANTHROPIC_MODEL"`
	OllamaURL       string `yaml:"ollama_url" env:"OLLAMA_URL"`
	OllamaModel     string `yaml:"ollama_model" env:"OLLAMA_MODEL"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider     string `yaml:"provider" env:"EMBEDDING_PROVIDER"` // openai, voyage, ollama
	Model        string `yaml:"model" env:"EMBEDDING_MODEL"`
	Dimension    int    `yaml:"dimension" env:"EMBEDDING_DIMENSION"`
	VoyageAPIKey string `yaml:"voyage_api_key" env:"VOYAGE_API_KEY"`
}

// RerankConfig contains reranker configuration.
type RerankConfig struct {
	Provider          string        `yaml:"provider" env:"RERANK_PROVIDER"` // voyage, llm, local
	BatchSize         int           `yaml:"batch_size" env:"RERANK_BATCH_SIZE"`
	TopK              int           `yaml:"top_k" env:"RERANK_TOP_K"`
	VoyageModel       string        `yaml:"voyage_model" env:"RERANK_VOYAGE_MODEL"`
	VoyageURL         string        `yaml:"voyage_url" env:"RERANK_VOYAGE_URL"`
	LocalURL          string        `yaml:"local_url" env:"RERANK_LOCAL_URL"`
	LocalTimeout      time.Duration `yaml:"local_timeout" env:"RERANK_LOCAL_TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"RERANK_REQUESTS_PER_SECOND"`
}

// DocConvConfig contains document conversion configuration.
type DocConvConfig struct {
	Provider     string        `yaml:"provider" env:"DOCCONV_PROVIDER"` // presigned, sync
	URL          string        `yaml:"url" env:"DOCCONV_URL"`
	APIKey       string        `yaml:"api_key" env:"DOCCONV_API_KEY"`
	PollInterval time.Duration `yaml:"poll_interval" env:"DOCCONV_POLL_INTERVAL"`
	MaxPolls     int           `yaml:"max_polls" env:"DOCCONV_MAX_POLLS"`
	Timeout      time.Duration `yaml:"timeout" env:"DOCCONV_TIMEOUT"`
}

// BlobConfig contains document blob storage configuration.
type BlobConfig struct {
	Provider string `yaml:"provider" env:"BLOB_PROVIDER"` // s3, filesystem
	Bucket   string `yaml:"bucket" env:"S3_BUCKET"`
	Region   string `yaml:"region" env:"S3_REGION"`
	Endpoint string `yaml:"endpoint" env:"S3_ENDPOINT"`
	Dir      string `yaml:"dir" env:"BLOB_DIR"`
}

// RetrievalConfig contains search defaults.
type RetrievalConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"RETRIEVAL_SIMILARITY_THRESHOLD"`
	DefaultLimit        int     `yaml:"default_limit" env:"RETRIEVAL_DEFAULT_LIMIT"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Debug  bool `yaml:"debug" env:"LOG_DEBUG"`
	Pretty bool `yaml:"pretty" env:"LOG_PRETTY"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:       "postgres",
			SQLitePath:   "./data/skald.db",
			MaxOpenConns: 20,
		},
		Queue: QueueConfig{
			Backend:              BackendPGMQ,
			MaxRetries:           3,
			VisibilityTimeout:    300 * time.Second,
			PollBackoff:          5 * time.Second,
			PollWait:             5 * time.Second,
			BatchSize:            10,
			Workers:              10,
			StaleProcessingAfter: 30 * time.Minute,
		},
		Redis: RedisConfig{
			URL:     "redis://localhost:6379/0",
			Channel: "process_memo",
		},
		SQS: SQSConfig{
			Region: "us-east-1",
		},
		AMQP: AMQPConfig{
			Queue:    "process_memo",
			Prefetch: 10,
		},
		PGMQ: PGMQConfig{
			Queue:           "process_memo",
			DeadLetterQueue: "process_memo_dlq",
		},
		LLM: LLMConfig{
			Provider:       "openai",
			OpenAIModel:    "gpt-4o-mini",
			AnthropicModel: "claude-3-5-sonnet-20241022",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "qwen2.5:7b",
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
		Rerank: RerankConfig{
			Provider:          "voyage",
			BatchSize:         25,
			TopK:              0,
			VoyageModel:       "rerank-2",
			VoyageURL:         "https://api.voyageai.com/v1/rerank",
			LocalURL:          "http://localhost:8080/rerank",
			LocalTimeout:      30 * time.Second,
			RequestsPerSecond: 10,
		},
		DocConv: DocConvConfig{
			Provider:     "sync",
			PollInterval: 2 * time.Second,
			MaxPolls:     150,
			Timeout:      120 * time.Second,
		},
		Blob: BlobConfig{
			Provider: "filesystem",
			Dir:      "./data/blobs",
		},
		Retrieval: RetrievalConfig{
			SimilarityThreshold: 0.75,
			DefaultLimit:        10,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML overlay named
// by SKALD_CONFIG_FILE and the environment, then validates it.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(ConfigFileEnv))
}

// LoadFile is Load with an explicit overlay path. An empty path skips the
// overlay.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the postgres driver", ErrInvalidConfig)
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("%w: SQLITE_PATH is required for the sqlite driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}

	switch c.Queue.Backend {
	case BackendRedis:
		if c.Redis.URL == "" || c.Redis.Channel == "" {
			return fmt.Errorf("%w: REDIS_URL and REDIS_CHANNEL are required", ErrInvalidConfig)
		}
	case BackendSQS:
		if c.SQS.QueueURL == "" {
			return fmt.Errorf("%w: SQS_QUEUE_URL is required", ErrInvalidConfig)
		}
	case BackendAMQP:
		if c.AMQP.URL == "" || c.AMQP.Queue == "" {
			return fmt.Errorf("%w: AMQP_URL and AMQP_QUEUE are required", ErrInvalidConfig)
		}
	case BackendPGMQ:
		if c.Database.URL == "" {
			return fmt.Errorf("%w: the pgmq backend needs DATABASE_URL", ErrInvalidConfig)
		}
		if c.PGMQ.Queue == "" || c.PGMQ.DeadLetterQueue == "" {
			return fmt.Errorf("%w: PGMQ_QUEUE and PGMQ_DEAD_LETTER_QUEUE are required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown queue backend %q", ErrInvalidConfig, c.Queue.Backend)
	}

	if c.Queue.MaxRetries < 1 {
		return fmt.Errorf("%w: QUEUE_MAX_RETRIES must be at least 1", ErrInvalidConfig)
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("%w: QUEUE_WORKERS must be at least 1", ErrInvalidConfig)
	}
	if c.Queue.BatchSize < 1 || c.Queue.BatchSize > 10 {
		return fmt.Errorf("%w: QUEUE_BATCH_SIZE must be in [1,10]", ErrInvalidConfig)
	}
	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("%w: EMBEDDING_DIMENSION must be positive", ErrInvalidConfig)
	}
	if c.Rerank.BatchSize < 1 {
		return fmt.Errorf("%w: RERANK_BATCH_SIZE must be positive", ErrInvalidConfig)
	}
	if c.Rerank.TopK < 0 {
		return fmt.Errorf("%w: RERANK_TOP_K must not be negative", ErrInvalidConfig)
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity threshold must be in [0,1]", ErrInvalidConfig)
	}
	if c.DocConv.MaxPolls < 1 {
		return fmt.Errorf("%w: DOCCONV_MAX_POLLS must be at least 1", ErrInvalidConfig)
	}
	return nil
}
