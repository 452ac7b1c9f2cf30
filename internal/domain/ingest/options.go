package ingest

import (
	"time"

	"github.com/okian/scoreboard/pkg/logger"
)

const (
	defaultStoreTimeout = 2 * time.Second
	defaultLockStripes  = 256
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStoreTimeout bounds each durable store call. Zero disables the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d >= 0 {
			p.storeTimeout = d
		}
	}
}

// WithLockStripes sets how many per-player mutexes serialize store access.
func WithLockStripes(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.stripes = n
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}
