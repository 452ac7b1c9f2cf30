package loadgen

import (
	"fmt"
	"time"
)

// Default run settings.
const (
	DefaultBaseURL       = "http://localhost:9080"
	DefaultPlayers       = 1_000
	DefaultScores        = 10_000
	DefaultCapacity      = 50
	DefaultMaxScore      = 1_000_000
	DefaultTimeout       = 30 * time.Second
	DefaultSettleTimeout = 10 * time.Second
	settlePollInterval   = 100 * time.Millisecond
)

// Config describes one load-and-verify run.
type Config struct {
	BaseURL  string
	Players  int
	Scores   int
	Capacity int
	MaxScore int64
	Workers  int
	Async    bool
	Verbose  bool
	Timeout  time.Duration

	// Seed drives score generation; zero picks a time-based seed.
	Seed int64

	// SettleTimeout bounds how long verification retries while async
	// submissions drain through the queue.
	SettleTimeout time.Duration
}

// Validate reports the first unusable field.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.Players < 1:
		return fmt.Errorf("%w: players must be positive", ErrInvalidConfig)
	case c.Scores < c.Players:
		return fmt.Errorf("%w: scores (%d) must cover every player (%d)", ErrInvalidConfig, c.Scores, c.Players)
	case c.Capacity < 1:
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidConfig)
	case c.MaxScore < 1:
		return fmt.Errorf("%w: max score must be positive", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Stats summarizes a run.
type Stats struct {
	LeaderboardID string
	Players       int
	Submitted     int
	Succeeded     int
	Failed        int
	Rejected      int
	Entries       int
	Duration      time.Duration
}
