// Package service wires the durable store, the leaderboard registry, the
// ingestion pipeline and the async queue into the operations served by the
// HTTP API and the Kafka consumer.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/scoreboard/internal/adapters/mq/queue"
	workerpool "github.com/okian/scoreboard/internal/adapters/mq/worker"
	"github.com/okian/scoreboard/internal/adapters/realtime"
	"github.com/okian/scoreboard/internal/adapters/store/memory"
	"github.com/okian/scoreboard/internal/domain/ingest"
	"github.com/okian/scoreboard/internal/domain/leaderboard"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/types"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

const (
	defaultQueueSize    = 100_000
	defaultStoreTimeout = 2 * time.Second
	defaultLockStripes  = 256
	defaultMaxCapacity  = 10_000
)

// Service implements the API dependencies for the scoreboard.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    Store
	registry *leaderboard.Registry
	pipeline *ingest.Pipeline
	queue    *eventqueue.InMemoryQueue
	pool     *workerpool.Pool
	hub      *realtime.Hub

	// Leaderboards by id, in creation order; current is the latest.
	boards  map[string]*leaderboard.Cache
	order   []string
	current *leaderboard.Cache

	// Configuration
	workerCount  int
	queueSize    int
	storeTimeout time.Duration
	lockStripes  int
	maxCapacity  int
	seedOnCreate bool

	started bool
	// ownsStore is set when Start created the store; Stop then drops it so a
	// restart opens a fresh one. A supplied store cannot be reopened.
	ownsStore   bool
	storeClosed bool
	logger      logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		boards:       map[string]*leaderboard.Cache{},
		workerCount:  runtime.NumCPU() * 2,
		queueSize:    defaultQueueSize,
		storeTimeout: defaultStoreTimeout,
		lockStripes:  defaultLockStripes,
		maxCapacity:  defaultMaxCapacity,
		seedOnCreate: true,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = realtime.NewHub(realtime.WithLogger(s.logger.Named("realtime")))
	}
	return s
}

// Start builds the pipeline and starts the queue workers. Without a store
// option an in-memory store is used.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.storeClosed {
		return ErrStopped
	}
	s.logger.Info(ctx, "starting scoreboard service...")

	if s.store == nil {
		s.store = memory.New()
		s.ownsStore = true
		s.logger.Info(ctx, "using in-memory store")
	}

	s.boards = map[string]*leaderboard.Cache{}
	s.order, s.current = nil, nil
	s.registry = leaderboard.NewRegistry(leaderboard.WithRegistryLogger(s.logger.Named("registry")))
	pipeline, err := ingest.NewPipeline(s.store, s.registry,
		ingest.WithStoreTimeout(s.storeTimeout),
		ingest.WithLockStripes(s.lockStripes),
		ingest.WithLogger(s.logger.Named("ingest")),
	)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	s.pipeline = pipeline

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s,
		workerpool.WithPoolLogger(s.logger.Named("worker")))
	// Workers drain the queue on Stop, so they outlive ctx.
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "scoreboard service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Duration("storeTimeout", s.storeTimeout),
	)
	return nil
}

// Stop drains the queue and closes the store. A service that created its own
// store can be started again; one given a store through WithStore cannot.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	pool, store := s.pool, s.store
	if s.ownsStore {
		s.store, s.ownsStore = nil, false
	} else {
		s.storeClosed = true
	}
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping scoreboard service...")

	// Workers call back into Ingest, so the lock is not held while draining.
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	if err := store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store failed", logger.Error(err))
	}
	s.logger.Info(ctx, "scoreboard service stopped")
}

// Ingest runs one record through the pipeline and, on success, pushes fresh
// snapshots to realtime subscribers.
func (s *Service) Ingest(ctx context.Context, rec model.ScoreRecord) model.Outcome {
	s.mu.RLock()
	p := s.pipeline
	s.mu.RUnlock()
	if p == nil {
		s.logger.Warn(ctx, "ingest before start", logger.String("player_id", rec.PlayerID))
		return model.Failure()
	}

	out := p.Ingest(ctx, rec)
	if out.OK() {
		s.publish(ctx)
	}
	return out
}

// Enqueue validates rec and hands it to the worker pool.
func (s *Service) Enqueue(ctx context.Context, rec model.ScoreRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.RLock()
	q := s.queue
	started := s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	if !q.Enqueue(ctx, rec) {
		return ErrQueueFull
	}
	return nil
}

// CreateLeaderboard creates a cache of the given capacity, seeds it from
// the store when configured, registers it and makes it current.
func (s *Service) CreateLeaderboard(ctx context.Context, capacity int) (types.LeaderboardInfo, error) {
	if capacity <= 0 || capacity > s.maxCapacity {
		return types.LeaderboardInfo{}, fmt.Errorf("%w: %d not in [1, %d]", leaderboard.ErrInvalidCapacity, capacity, s.maxCapacity)
	}

	s.mu.RLock()
	started, store, registry := s.started, s.store, s.registry
	s.mu.RUnlock()
	if !started {
		return types.LeaderboardInfo{}, ErrNotStarted
	}

	var seed []model.ScoreRecord
	if s.seedOnCreate {
		seedCtx, cancel := s.storeContext(ctx)
		var err error
		seed, err = store.TopScores(seedCtx, capacity)
		cancel()
		if err != nil {
			s.logger.Error(ctx, "leaderboard seed query failed", logger.Int("capacity", capacity), logger.Error(err))
			return types.LeaderboardInfo{}, fmt.Errorf("%w: %w", ErrSeed, err)
		}
	}

	cache := leaderboard.NewCache(leaderboard.WithLogger(s.logger.Named("leaderboard")))
	if err := cache.Initialize(capacity, seed); err != nil {
		return types.LeaderboardInfo{}, err
	}
	registry.Register(cache)

	s.mu.Lock()
	s.boards[cache.ID()] = cache
	s.order = append(s.order, cache.ID())
	s.current = cache
	s.mu.Unlock()

	s.logger.Info(ctx, "leaderboard created",
		logger.String("leaderboard", cache.ID()),
		logger.Int("capacity", capacity),
		logger.Int("seeded", len(seed)))
	return info(cache, true), nil
}

// TopPlayers returns the ranked content of the current leaderboard.
func (s *Service) TopPlayers(ctx context.Context) ([]types.Entry, error) {
	s.mu.RLock()
	c := s.current
	s.mu.RUnlock()
	if c == nil {
		return nil, fmt.Errorf("%w: no leaderboard has been created", leaderboard.ErrUninitialized)
	}
	return entries(c)
}

// LeaderboardTop returns the ranked content of leaderboard id.
func (s *Service) LeaderboardTop(ctx context.Context, id string) ([]types.Entry, error) {
	c, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return entries(c)
}

// Leaderboards lists every leaderboard in creation order.
func (s *Service) Leaderboards(ctx context.Context) []types.LeaderboardInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.LeaderboardInfo, 0, len(s.order))
	for _, id := range s.order {
		c := s.boards[id]
		out = append(out, info(c, c == s.current))
	}
	return out
}

// Snapshot returns the current realtime snapshot of leaderboard id.
func (s *Service) Snapshot(ctx context.Context, id string) (realtime.Snapshot, error) {
	c, err := s.lookup(id)
	if err != nil {
		return realtime.Snapshot{}, err
	}
	return snapshot(c)
}

// Hub returns the realtime hub snapshots are published to.
func (s *Service) Hub() *realtime.Hub { return s.hub }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"leaderboards": len(s.order),
	}
	if s.current != nil {
		stats["currentLeaderboard"] = s.current.ID()
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)

		processed, failed := s.pool.Processed()
		stats["processed"] = processed
		stats["failed"] = failed

		if n, err := s.store.Count(ctx); err == nil {
			stats["totalPlayers"] = n
		} else {
			s.logger.Warn(ctx, "counting players failed", logger.Error(err))
		}
	}
	return stats
}

func (s *Service) lookup(id string) (*leaderboard.Cache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.boards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLeaderboardNotFound, id)
	}
	return c, nil
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout > 0 {
		return context.WithTimeout(ctx, s.storeTimeout)
	}
	return context.WithCancel(ctx)
}

// publish sends a snapshot of every watched leaderboard.
func (s *Service) publish(ctx context.Context) {
	s.mu.RLock()
	var watched []*leaderboard.Cache
	for _, id := range s.order {
		if s.hub.Watched(id) {
			watched = append(watched, s.boards[id])
		}
	}
	s.mu.RUnlock()

	for _, c := range watched {
		snap, err := snapshot(c)
		if err != nil {
			if !errors.Is(err, leaderboard.ErrUninitialized) {
				s.logger.Warn(ctx, "snapshot failed", logger.String("leaderboard", c.ID()), logger.Error(err))
			}
			continue
		}
		s.hub.Publish(ctx, snap)
	}
}

func entries(c *leaderboard.Cache) ([]types.Entry, error) {
	top, err := c.TopPlayers()
	if err != nil {
		return nil, err
	}
	return types.Ranked(top), nil
}

// snapshot stamps the cache content with its version so the hub and
// streams can discard snapshots overtaken by newer ones.
func snapshot(c *leaderboard.Cache) (realtime.Snapshot, error) {
	top, version, err := c.Versioned()
	if err != nil {
		return realtime.Snapshot{}, err
	}
	return realtime.Snapshot{
		LeaderboardID: c.ID(),
		Seq:           version,
		Entries:       types.Ranked(top),
		At:            time.Now().UTC(),
	}, nil
}

func info(c *leaderboard.Cache, current bool) types.LeaderboardInfo {
	return types.LeaderboardInfo{
		ID:       c.ID(),
		Capacity: c.Capacity(),
		Size:     c.Len(),
		Current:  current,
	}
}
