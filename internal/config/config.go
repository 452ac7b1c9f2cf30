// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and SCOREBOARD_ env vars.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory score queue behind POST /scores/async.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of queue workers.
	WorkerCount int `koanf:"worker_count"`

	// DefaultLeaderboardSize is used when POST /leaderboards has no size.
	DefaultLeaderboardSize int `koanf:"default_leaderboard_size"`

	// MaxLeaderboardSize caps the capacity a client may request.
	MaxLeaderboardSize int `koanf:"max_leaderboard_size"`

	// SeedOnCreate fills new leaderboards from the durable store.
	SeedOnCreate bool `koanf:"seed_on_create"`

	// StoreTimeoutMS bounds every durable store call.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`

	// LockStripes is the number of per-player lock stripes in the pipeline.
	LockStripes int `koanf:"lock_stripes"`

	Store   StoreConfig   `koanf:"store"`
	Kafka   KafkaConfig   `koanf:"kafka"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// StoreConfig selects and addresses the durable store.
type StoreConfig struct {
	Driver        string `koanf:"driver"`
	DSN           string `koanf:"dsn"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	KeyPrefix     string `koanf:"key_prefix"`
}

// KafkaConfig enables the optional topic consumer.
type KafkaConfig struct {
	Enabled          bool   `koanf:"enabled"`
	BootstrapServers string `koanf:"bootstrap_servers"`
	Topic            string `koanf:"topic"`
	GroupID          string `koanf:"group_id"`
	DLQTopic         string `koanf:"dlq_topic"`
	AutoOffsetReset  string `koanf:"auto_offset_reset"`
	MaxConcurrency   int64  `koanf:"max_concurrency"`
}

// MetricsConfig shapes the Prometheus collectors served on /metrics.
type MetricsConfig struct {
	Enabled           bool   `koanf:"enabled"`
	Namespace         string `koanf:"namespace"`
	Subsystem         string `koanf:"subsystem"`
	RefreshIntervalMS int    `koanf:"refresh_interval_ms"`

	// LatencyBucketsMS overrides the histogram buckets; empty keeps the defaults.
	LatencyBucketsMS []float64 `koanf:"latency_buckets_ms"`

	// ConstLabels are attached to every collector, e.g. {"region": "eu"}.
	ConstLabels map[string]string `koanf:"const_labels"`
}

// RefreshInterval returns RefreshIntervalMS as a duration.
func (m MetricsConfig) RefreshInterval() time.Duration {
	return time.Duration(m.RefreshIntervalMS) * time.Millisecond
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		QueueSize:              100_000,
		WorkerCount:            runtime.NumCPU() * 2,
		DefaultLeaderboardSize: 10,
		MaxLeaderboardSize:     10_000,
		SeedOnCreate:           true,
		StoreTimeoutMS:         2_000,
		LockStripes:            256,
		Store: StoreConfig{
			Driver:    DriverMemory,
			RedisAddr: "localhost:6379",
			KeyPrefix: "scoreboard",
		},
		Kafka: KafkaConfig{
			BootstrapServers: "localhost:9092",
			Topic:            "scores",
			GroupID:          "scoreboard",
			AutoOffsetReset:  "earliest",
			MaxConcurrency:   10,
		},
		Metrics: MetricsConfig{
			Enabled:           true,
			Namespace:         "scoreboard",
			Subsystem:         "leaderboard",
			RefreshIntervalMS: 10_000,
		},
	}
}

// StoreTimeout returns StoreTimeoutMS as a duration.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return invalid("addr must not be empty")
	case c.QueueSize < 1:
		return invalid("queue_size must be positive")
	case c.WorkerCount < 1:
		return invalid("worker_count must be positive")
	case c.MaxLeaderboardSize < 1:
		return invalid("max_leaderboard_size must be positive")
	case c.DefaultLeaderboardSize < 1 || c.DefaultLeaderboardSize > c.MaxLeaderboardSize:
		return invalid("default_leaderboard_size must be in [1, max_leaderboard_size]")
	case c.StoreTimeoutMS < 0:
		return invalid("store_timeout_ms must not be negative")
	case c.LockStripes < 1:
		return invalid("lock_stripes must be positive")
	case c.Metrics.RefreshIntervalMS < 1:
		return invalid("metrics.refresh_interval_ms must be positive")
	case strings.TrimSpace(c.Metrics.Namespace) == "":
		return invalid("metrics.namespace must not be empty")
	}

	for i := 1; i < len(c.Metrics.LatencyBucketsMS); i++ {
		if c.Metrics.LatencyBucketsMS[i] <= c.Metrics.LatencyBucketsMS[i-1] {
			return invalid("metrics.latency_buckets_ms must be strictly increasing")
		}
	}

	switch c.LogFormat {
	case "", "text", "json":
	default:
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Store.RedisAddr == "" {
			return invalid("store.redis_addr is required for the redis driver")
		}
	case DriverPostgres, DriverMySQL:
		if c.Store.DSN == "" {
			return invalid("store.dsn is required for the %s driver", c.Store.Driver)
		}
	default:
		return invalid("unknown store.driver %q", c.Store.Driver)
	}

	if c.Kafka.Enabled && (c.Kafka.BootstrapServers == "" || c.Kafka.Topic == "" || c.Kafka.GroupID == "") {
		return invalid("kafka.bootstrap_servers, kafka.topic and kafka.group_id are required when kafka is enabled")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
