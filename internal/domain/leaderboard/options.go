package leaderboard

import "github.com/okian/scoreboard/pkg/logger"

const defaultDegree = 16

// Option configures a Cache.
type Option func(*Cache)

// WithID overrides the generated cache id.
func WithID(id string) Option {
	return func(c *Cache) {
		if id != "" {
			c.id = id
		}
	}
}

// WithDegree sets the B-tree degree of the ordered entries.
func WithDegree(degree int) Option {
	return func(c *Cache) {
		if degree >= 2 {
			c.degree = degree
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}
