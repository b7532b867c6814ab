package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a loaded configuration cannot run
var ErrInvalidConfig = errors.New("invalid config")

// Feed sources
const (
	SourceREST     = "rest"
	SourcePostgres = "postgres"
)

// Config holds runtime configuration for the service
type Config struct {
	NodeID    string `yaml:"node_id"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// RulesFile optionally overrides the built-in rule sets
	RulesFile string `yaml:"rules_file"`

	Server   ServerConfig   `yaml:"server"`
	Feed     FeedConfig     `yaml:"feed"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Worker   WorkerConfig   `yaml:"worker"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodySize     int64         `yaml:"max_body_size"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// FeedConfig configures where surveillance records come from
type FeedConfig struct {
	Source            string        `yaml:"source"`
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`

	// FieldMaps replaces a disease's column layout: disease -> column -> metric
	FieldMaps map[string]map[string]string `yaml:"field_maps"`
}

// RedisConfig configures the record cache
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig configures the Postgres record source
type PostgresConfig struct {
	URL             string        `yaml:"url"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
}

// KafkaConfig configures refresh notices in and warning batches out
type KafkaConfig struct {
	Enabled       bool           `yaml:"enabled"`
	Brokers       []string       `yaml:"brokers"`
	WarningsTopic string         `yaml:"warnings_topic"`
	RefreshTopic  string         `yaml:"refresh_topic"`
	GroupID       string         `yaml:"group_id"`
	Producer      ProducerConfig `yaml:"producer"`
}

// ProducerConfig tunes the Kafka writer pool
type ProducerConfig struct {
	PoolSize     int           `yaml:"pool_size"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
	Compression  string        `yaml:"compression"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// WorkerConfig tunes the detection worker pool
type WorkerConfig struct {
	NumWorkers    int           `yaml:"num_workers"`
	QueueSize     int           `yaml:"queue_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
}

// ScheduleConfig controls the periodic refresh of every disease
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Spec    string `yaml:"spec"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     10 * 1024 * 1024,
			CORSOrigins:     []string{"*"},
		},
		Feed: FeedConfig{
			Source:            SourceREST,
			BaseURL:           "http://localhost:8000/api/v1",
			Timeout:           20 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
			MaxRetries:        3,
			RetryBackoff:      200 * time.Millisecond,
			CacheTTL:          10 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		Postgres: PostgresConfig{
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			WarningsTopic: "ewarn.warnings",
			RefreshTopic:  "ewarn.refresh",
			GroupID:       "ewarn",
			Producer: ProducerConfig{
				PoolSize:     2,
				BatchSize:    100,
				BatchTimeout: 10 * time.Millisecond,
				WriteTimeout: 10 * time.Second,
				RequiredAcks: -1,
				Compression:  "snappy",
				MaxRetries:   3,
				RetryBackoff: 100 * time.Millisecond,
			},
		},
		Worker: WorkerConfig{
			NumWorkers:    3,
			QueueSize:     64,
			BatchSize:     10,
			FlushInterval: time.Second,
			JobTimeout:    time.Minute,
		},
		Schedule: ScheduleConfig{
			Enabled: true,
			Spec:    "0 */6 * * *",
		},
	}
}

// Load builds the config from defaults, an optional YAML file, a .env file
// and EWARN_* environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, err
		}
	}

	// godotenv never overrides variables that are already set
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.NodeID = getEnv("EWARN_NODE_ID", c.NodeID)
	c.LogLevel = getEnv("EWARN_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("EWARN_LOG_FORMAT", c.LogFormat)
	c.RulesFile = getEnv("EWARN_RULES_FILE", c.RulesFile)

	c.Server.Addr = getEnv("EWARN_HTTP_ADDR", c.Server.Addr)
	c.Server.CORSOrigins = getEnvAsList("EWARN_CORS_ORIGINS", c.Server.CORSOrigins)

	c.Feed.Source = getEnv("EWARN_FEED_SOURCE", c.Feed.Source)
	c.Feed.BaseURL = getEnv("EWARN_FEED_BASE_URL", c.Feed.BaseURL)
	c.Feed.Timeout = getEnvAsDuration("EWARN_FEED_TIMEOUT", c.Feed.Timeout)
	c.Feed.RequestsPerSecond = getEnvAsFloat("EWARN_FEED_RPS", c.Feed.RequestsPerSecond)
	c.Feed.CacheTTL = getEnvAsDuration("EWARN_CACHE_TTL", c.Feed.CacheTTL)

	c.Redis.Enabled = getEnvAsBool("EWARN_REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("EWARN_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("EWARN_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("EWARN_REDIS_DB", c.Redis.DB)

	c.Postgres.URL = getEnv("EWARN_DATABASE_URL", c.Postgres.URL)

	c.Kafka.Enabled = getEnvAsBool("EWARN_KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = getEnvAsList("EWARN_KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.WarningsTopic = getEnv("EWARN_KAFKA_WARNINGS_TOPIC", c.Kafka.WarningsTopic)
	c.Kafka.RefreshTopic = getEnv("EWARN_KAFKA_REFRESH_TOPIC", c.Kafka.RefreshTopic)
	c.Kafka.GroupID = getEnv("EWARN_KAFKA_GROUP_ID", c.Kafka.GroupID)

	c.Worker.NumWorkers = getEnvAsInt("EWARN_WORKERS", c.Worker.NumWorkers)

	c.Schedule.Enabled = getEnvAsBool("EWARN_SCHEDULE_ENABLED", c.Schedule.Enabled)
	c.Schedule.Spec = getEnv("EWARN_SCHEDULE", c.Schedule.Spec)
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	switch c.Feed.Source {
	case SourceREST:
		if c.Feed.BaseURL == "" {
			return fmt.Errorf("%w: feed.base_url is required for the rest source", ErrInvalidConfig)
		}
	case SourcePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("%w: postgres.url is required for the postgres source", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown feed source %q", ErrInvalidConfig, c.Feed.Source)
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("%w: kafka.brokers is required", ErrInvalidConfig)
		}
		if c.Kafka.WarningsTopic == "" || c.Kafka.RefreshTopic == "" {
			return fmt.Errorf("%w: kafka topics are required", ErrInvalidConfig)
		}
	}

	if c.Worker.NumWorkers <= 0 || c.Worker.QueueSize <= 0 {
		return fmt.Errorf("%w: worker.num_workers and worker.queue_size must be positive", ErrInvalidConfig)
	}

	if c.Schedule.Enabled && strings.TrimSpace(c.Schedule.Spec) == "" {
		return fmt.Errorf("%w: schedule.spec is required when the schedule is enabled", ErrInvalidConfig)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
