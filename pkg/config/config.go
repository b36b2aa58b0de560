// Package config loads and validates the review pipeline configuration from a
// YAML file with environment-variable overrides. It provides typed structs for
// every subsystem (worker pool, memory guard, ingestion, translation, remote
// forwarding, Kafka, Redis, Postgres, logging, metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/review-stats/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Pool      PoolConfig      `yaml:"pool"`
	Memory    MemoryConfig    `yaml:"memory"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Translate TranslateConfig `yaml:"translate"`
	Forward   ForwardConfig   `yaml:"forward"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SourceConfig points at the delimited review file.
type SourceConfig struct {
	Path string `yaml:"path"`
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queueSize"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// MemoryConfig holds the startup ceiling and the runtime low-memory threshold.
type MemoryConfig struct {
	MaxTotalBytes     uint64        `yaml:"maxTotalBytes"`
	MinAvailableBytes uint64        `yaml:"minAvailableBytes"`
	SampleInterval    time.Duration `yaml:"sampleInterval"`
}

// IngestConfig controls truncation, throttling and ranking size.
type IngestConfig struct {
	TextLimit     int           `yaml:"textLimit"`
	ThrottleEvery int           `yaml:"throttleEvery"`
	ThrottleDelay time.Duration `yaml:"throttleDelay"`
	TopK          int           `yaml:"topK"`
	// SkipDuplicateBuffering suppresses the translation buffer insert for
	// records already seen. Off by default: duplicates are buffered before
	// they are detected.
	SkipDuplicateBuffering bool `yaml:"skipDuplicateBuffering"`
}

// TranslateConfig describes the translation endpoint and batch dispatch.
type TranslateConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Endpoint       string        `yaml:"endpoint"`
	InputLang      string        `yaml:"inputLang"`
	OutputLang     string        `yaml:"outputLang"`
	BatchSize      int           `yaml:"batchSize"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	BatchDelay     time.Duration `yaml:"batchDelay"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	PrintSample    int           `yaml:"printSample"`
	Sink           string        `yaml:"sink"`
}

// ForwardConfig controls offloading buffered texts to peer machines.
type ForwardConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Self          string        `yaml:"self"`
	Peers         []string      `yaml:"peers"`
	Topic         string        `yaml:"topic"`
	BatchSize     int           `yaml:"batchSize"`
	SendInterval  time.Duration `yaml:"sendInterval"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	MaxAttempts   int           `yaml:"maxAttempts"`
}

// KafkaConfig holds Kafka broker settings used by the forwarding transport.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
}

// RedisConfig holds Redis connection parameters for the translation cache.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	ResultTTL time.Duration `yaml:"resultTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters for the translation
// store.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls the per-run log file.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
	Stderr bool   `yaml:"stderr"`
}

// MetricsConfig controls the Prometheus metrics and health server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated with the pipeline's tuning values.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			Workers:         4,
			QueueSize:       16,
			ShutdownTimeout: 10 * time.Second,
		},
		Memory: MemoryConfig{
			MaxTotalBytes:     4_000_000_000,
			MinAvailableBytes: 500_000,
			SampleInterval:    time.Second,
		},
		Ingest: IngestConfig{
			TextLimit:     1000,
			ThrottleEvery: 1000,
			ThrottleDelay: 500 * time.Millisecond,
			TopK:          1000,
		},
		Translate: TranslateConfig{
			Enabled:        true,
			Endpoint:       "http://localhost:8090/translate",
			InputLang:      "en",
			OutputLang:     "fr",
			BatchSize:      100,
			RequestTimeout: 3000 * time.Millisecond,
			BatchDelay:     200 * time.Millisecond,
			MaxAttempts:    5,
			PrintSample:    5,
			Sink:           "log",
		},
		Forward: ForwardConfig{
			Self:          "main",
			Topic:         "review-translate",
			BatchSize:     100,
			SendInterval:  200 * time.Millisecond,
			RatePerSecond: 50,
			MaxAttempts:   3,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "review-stats",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			ResultTTL: 24 * time.Hour,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "reviewstats",
			User:            "reviewstats",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Dir:    ".",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Validate rejects settings the tasks cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Pool.Workers <= 0 {
		problems = append(problems, "pool.workers must be positive")
	}
	if c.Pool.QueueSize < 0 {
		problems = append(problems, "pool.queueSize must not be negative")
	}
	if c.Memory.SampleInterval <= 0 {
		problems = append(problems, "memory.sampleInterval must be positive")
	}
	if c.Ingest.TextLimit <= 0 {
		problems = append(problems, "ingest.textLimit must be positive")
	}
	if c.Ingest.ThrottleEvery < 0 {
		problems = append(problems, "ingest.throttleEvery must not be negative")
	}
	if c.Ingest.TopK <= 0 {
		problems = append(problems, "ingest.topK must be positive")
	}
	if c.Translate.Enabled {
		if c.Translate.Endpoint == "" {
			problems = append(problems, "translate.endpoint is required")
		}
		if c.Translate.BatchSize <= 0 {
			problems = append(problems, "translate.batchSize must be positive")
		}
		if c.Translate.MaxAttempts <= 0 {
			problems = append(problems, "translate.maxAttempts must be positive")
		}
		switch c.Translate.Sink {
		case "log", "redis", "postgres":
		default:
			problems = append(problems, fmt.Sprintf("translate.sink %q is not one of log, redis, postgres", c.Translate.Sink))
		}
	}
	if c.Forward.Enabled {
		if c.Forward.BatchSize <= 0 {
			problems = append(problems, "forward.batchSize must be positive")
		}
		if c.Forward.Topic == "" {
			problems = append(problems, "forward.topic is required")
		}
		if len(c.Kafka.Brokers) == 0 {
			problems = append(problems, "kafka.brokers is required when forwarding")
		}
	}
	if len(problems) > 0 {
		return apperrors.New(apperrors.ErrInvalidConfig, 0, strings.Join(problems, "; "))
	}
	return nil
}

// applyEnvOverrides reads RS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RS_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("RS_POOL_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.Workers = n
		}
	}
	if v := os.Getenv("RS_MEMORY_MAX_TOTAL_BYTES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Memory.MaxTotalBytes = n
		}
	}
	if v := os.Getenv("RS_MEMORY_MIN_AVAILABLE_BYTES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Memory.MinAvailableBytes = n
		}
	}
	if v := os.Getenv("RS_TRANSLATE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Translate.Enabled = b
		}
	}
	if v := os.Getenv("RS_TRANSLATE_ENDPOINT"); v != "" {
		cfg.Translate.Endpoint = v
	}
	if v := os.Getenv("RS_TRANSLATE_SINK"); v != "" {
		cfg.Translate.Sink = v
	}
	if v := os.Getenv("RS_FORWARD_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Forward.Enabled = b
		}
	}
	if v := os.Getenv("RS_FORWARD_SELF"); v != "" {
		cfg.Forward.Self = v
	}
	if v := os.Getenv("RS_FORWARD_PEERS"); v != "" {
		cfg.Forward.Peers = strings.Split(v, ",")
	}
	if v := os.Getenv("RS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("RS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("RS_LOGGING_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv("RS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
			cfg.Metrics.Enabled = true
		}
	}
}
