package service

import (
	"time"

	"github.com/okian/scoreboard/internal/adapters/realtime"
	"github.com/okian/scoreboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the durable store. The service closes it on Stop.
func WithStore(store Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithWorkerCount sets the number of queue workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the async score queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithStoreTimeout bounds each durable store call; zero disables it.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.storeTimeout = d
		}
	}
}

// WithLockStripes sets the number of per-player lock stripes.
func WithLockStripes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.lockStripes = n
		}
	}
}

// WithMaxCapacity caps the capacity accepted by CreateLeaderboard.
func WithMaxCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCapacity = n
		}
	}
}

// WithSeedOnCreate controls whether new leaderboards are filled from the store.
func WithSeedOnCreate(seed bool) Option {
	return func(s *Service) {
		s.seedOnCreate = seed
	}
}

// WithHub sets the realtime hub snapshots are published to.
func WithHub(hub *realtime.Hub) Option {
	return func(s *Service) {
		if hub != nil {
			s.hub = hub
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
