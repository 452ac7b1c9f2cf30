package kafka

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultMaxConcurrency  = 10
	defaultAutoOffsetReset = "earliest"
	defaultSessionTimeout  = 45 * time.Second
	defaultFlushTimeout    = 15 * time.Second
	pollTimeoutMs          = 100
)

// Config holds the consumer settings. DLQTopic is optional; without it
// messages that fail processing are logged and skipped.
type Config struct {
	BootstrapServers string
	Topic            string
	GroupID          string
	DLQTopic         string
	AutoOffsetReset  string
	MaxConcurrency   int64
	SessionTimeout   time.Duration
	FlushTimeout     time.Duration
	EnableLogs       bool
}

// WithDefaults returns a copy of c with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	if c.AutoOffsetReset == "" {
		c.AutoOffsetReset = defaultAutoOffsetReset
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = defaultSessionTimeout
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = defaultFlushTimeout
	}
	return c
}

// Validate reports the first missing or malformed field.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.BootstrapServers) == "":
		return fmt.Errorf("%w: bootstrap servers are required", ErrInvalidConfig)
	case strings.TrimSpace(c.Topic) == "":
		return fmt.Errorf("%w: topic is required", ErrInvalidConfig)
	case strings.TrimSpace(c.GroupID) == "":
		return fmt.Errorf("%w: group id is required", ErrInvalidConfig)
	case c.DLQTopic != "" && c.DLQTopic == c.Topic:
		return fmt.Errorf("%w: dlq topic must differ from topic", ErrInvalidConfig)
	}
	switch c.AutoOffsetReset {
	case "", "earliest", "latest":
	default:
		return fmt.Errorf("%w: auto offset reset %q", ErrInvalidConfig, c.AutoOffsetReset)
	}
	return nil
}
