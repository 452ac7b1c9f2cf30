package api

import "github.com/okian/scoreboard/pkg/logger"

const defaultLeaderboardSize = 10

type options struct {
	defaultSize int
	logger      logger.Logger
}

// Option configures the Server.
type Option func(*options)

// WithDefaultLeaderboardSize sets the capacity used when POST /leaderboards
// has no size parameter.
func WithDefaultLeaderboardSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.defaultSize = n
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
