// Package loadgen drives a running scoreboard service with generated
// scores and checks that the served leaderboard matches them.
package loadgen

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/types"
	"github.com/okian/scoreboard/pkg/logger"
)

// Run creates a fresh leaderboard, submits generated scores with
// cfg.Workers concurrent clients and verifies the result.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	start := time.Now()
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	if err := client.Health(ctx); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	records, err := Generate(cfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}

	info, err := client.CreateLeaderboard(ctx, cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("create leaderboard: %w", err)
	}
	log.Info(ctx, "load run started",
		logger.String("leaderboard", info.ID),
		logger.Int("players", cfg.Players),
		logger.Int("scores", len(records)),
		logger.Int("workers", cfg.Workers),
		logger.Bool("async", cfg.Async),
		logger.Int64("seed", seed))

	stats := &Stats{LeaderboardID: info.ID, Players: cfg.Players}
	accepted := submit(ctx, client, cfg, records, stats, log)

	best := Bests(accepted)
	entries, err := settle(ctx, client, cfg, info.ID, best)
	stats.Entries = len(entries)
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, err
	}

	log.Info(ctx, "load run verified",
		logger.Int("submitted", stats.Submitted),
		logger.Int("succeeded", stats.Succeeded),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("entries", stats.Entries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("scoresPerSecond", float64(stats.Submitted)/stats.Duration.Seconds()))
	return stats, nil
}

// submit posts every record and returns the ones the service accepted.
func submit(ctx context.Context, client *Client, cfg *Config, records []model.ScoreRecord, stats *Stats, log logger.Logger) []model.ScoreRecord {
	ok := make([]bool, len(records))
	var succeeded, failed, rejected atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			switch client.Submit(gctx, records[i], cfg.Async) {
			case ResultOK:
				ok[i] = true
				succeeded.Add(1)
			case ResultRejected:
				rejected.Add(1)
			default:
				failed.Add(1)
			}
			if cfg.Verbose {
				if n := succeeded.Load() + rejected.Load() + failed.Load(); n%1000 == 0 {
					log.Debug(gctx, "progress", logger.Int64("done", n), logger.Int("total", len(records)))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Succeeded = int(succeeded.Load())
	stats.Failed = int(failed.Load())
	stats.Rejected = int(rejected.Load())
	stats.Submitted = stats.Succeeded + stats.Failed + stats.Rejected

	out := make([]model.ScoreRecord, 0, stats.Succeeded)
	for i, r := range records {
		if ok[i] {
			out = append(out, r)
		}
	}
	return out
}

// settle fetches and verifies the leaderboard. Queued submissions may still
// be draining, so async runs retry until SettleTimeout.
func settle(ctx context.Context, client *Client, cfg *Config, id string, best map[string]int64) ([]types.Entry, error) {
	var deadline time.Time
	if cfg.Async {
		timeout := cfg.SettleTimeout
		if timeout <= 0 {
			timeout = DefaultSettleTimeout
		}
		deadline = time.Now().Add(timeout)
	}

	for {
		entries, err := client.Leaderboard(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetch leaderboard: %w", err)
		}
		verr := Verify(best, entries, cfg.Capacity)
		if verr == nil || time.Now().After(deadline) {
			return entries, verr
		}
		select {
		case <-ctx.Done():
			return entries, ctx.Err()
		case <-time.After(settlePollInterval):
		}
	}
}
