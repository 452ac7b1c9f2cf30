// Package ingest reconciles one incoming score with the durable store and
// every registered leaderboard, producing a single outcome.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

// Store is the durable view of each player's last accepted score.
type Store interface {
	// FindCurrentScore returns the stored record and whether one exists.
	FindCurrentScore(ctx context.Context, playerID string) (model.ScoreRecord, bool, error)
	// Upsert inserts rec when exists is false and updates it otherwise.
	// Implementations return ErrRecordExists or ErrRecordMissing when the
	// store disagrees with exists.
	Upsert(ctx context.Context, rec model.ScoreRecord, exists bool) error
}

// SeedSource lists the highest stored scores, best first.
type SeedSource interface {
	TopScores(ctx context.Context, n int) ([]model.ScoreRecord, error)
}

// Broadcaster delivers a record to every registered leaderboard.
type Broadcaster interface {
	Broadcast(ctx context.Context, rec model.ScoreRecord) error
}

// Pipeline ingests score records. It is safe for concurrent use.
type Pipeline struct {
	store        Store
	fanout       Broadcaster
	storeTimeout time.Duration
	stripes      int
	locks        []sync.Mutex
	logger       logger.Logger
}

// NewPipeline wires a pipeline over store and fanout.
func NewPipeline(store Store, fanout Broadcaster, opts ...Option) (*Pipeline, error) {
	if store == nil || fanout == nil {
		return nil, ErrMissingDependency
	}
	p := &Pipeline{
		store:        store,
		fanout:       fanout,
		storeTimeout: defaultStoreTimeout,
		stripes:      defaultLockStripes,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.locks = make([]sync.Mutex, p.stripes)
	return p, nil
}

// Ingest runs lookup, compare, persist and broadcast for rec. It never
// returns an error: every failure collapses into the failure outcome and is
// logged with its stage. A durable write is kept even when the broadcast
// that follows it fails.
func (p *Pipeline) Ingest(ctx context.Context, rec model.ScoreRecord) model.Outcome {
	start := time.Now()
	out := p.ingest(ctx, rec)
	metrics.RecordIngest(string(out.Status), float64(time.Since(start).Microseconds())/1000)
	return out
}

func (p *Pipeline) ingest(ctx context.Context, rec model.ScoreRecord) model.Outcome {
	log := p.logger.With(logger.String("player_id", rec.PlayerID), logger.Int64("score", rec.Score))

	if err := rec.Validate(); err != nil {
		log.Warn(ctx, "rejected score record", logger.String("stage", "validate"), logger.Error(err))
		metrics.RecordErrorByType("validation_error", "warning")
		return model.Failure()
	}

	if err := p.persist(ctx, rec); err != nil {
		log.Error(ctx, "score persistence failed", logger.Error(err))
		metrics.RecordErrorByComponent("store", errorType(err))
		return model.Failure()
	}

	if err := p.fanout.Broadcast(ctx, rec); err != nil {
		log.Error(ctx, "leaderboard update failed", logger.String("stage", "broadcast"), logger.Error(err))
		metrics.RecordErrorByComponent("leaderboard", "update_failed")
		return model.Failure()
	}

	log.Debug(ctx, model.MessageIngested)
	return model.Success()
}

// persist writes rec when it beats the stored score. Lookup and write for
// one player run under that player's stripe lock.
func (p *Pipeline) persist(ctx context.Context, rec model.ScoreRecord) error {
	mu := &p.locks[xxhash.Sum64String(rec.PlayerID)%uint64(len(p.locks))]
	mu.Lock()
	defer mu.Unlock()

	var (
		current model.ScoreRecord
		exists  bool
	)
	err := p.call(ctx, "find", func(ctx context.Context) error {
		var err error
		current, exists, err = p.store.FindCurrentScore(ctx, rec.PlayerID)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: lookup: %w", ErrStorage, err)
	}

	if exists && !rec.Better(current) {
		metrics.RecordIngestWriteSkipped()
		return nil
	}

	err = p.call(ctx, "upsert", func(ctx context.Context) error {
		return p.store.Upsert(ctx, rec, exists)
	})
	if err != nil {
		return fmt.Errorf("%w: upsert: %w", ErrStorage, err)
	}
	return nil
}

func (p *Pipeline) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if p.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.storeTimeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordStoreError(op)
	}
	return err
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrRecordExists), errors.Is(err, ErrRecordMissing):
		return "conflict"
	default:
		return "store_error"
	}
}
