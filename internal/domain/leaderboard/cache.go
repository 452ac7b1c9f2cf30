// Package leaderboard implements bounded top-N caches of player scores and
// the registry that fans score updates out to them.
package leaderboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

// item is one held record plus the insertion sequence used to break ties.
type item struct {
	rec model.ScoreRecord
	seq uint64
}

// less orders items from the lowest ranked to the highest: score ascending,
// and among equal scores the most recently inserted first. Min() is therefore
// always the next eviction candidate, and earlier insertions win ties.
func less(a, b item) bool {
	if a.rec.Score != b.rec.Score {
		return a.rec.Score < b.rec.Score
	}
	return a.seq > b.seq
}

// board is the mutable state of an initialized cache.
type board struct {
	capacity int
	order    *btree.BTreeG[item]
	index    map[string]item
	seq      uint64
}

func newBoard(capacity, degree int) *board {
	return &board{
		capacity: capacity,
		order:    btree.NewG(degree, less),
		index:    make(map[string]item, capacity),
	}
}

func (b *board) next(rec model.ScoreRecord) item {
	b.seq++
	return item{rec: rec, seq: b.seq}
}

func (b *board) insert(rec model.ScoreRecord) error {
	it := b.next(rec)
	if _, replaced := b.order.ReplaceOrInsert(it); replaced {
		return fmt.Errorf("%w: duplicate order key for %q", errStructure, rec.PlayerID)
	}
	b.index[rec.PlayerID] = it
	return nil
}

// apply folds one record into the board and reports what changed.
func (b *board) apply(rec model.ScoreRecord) (string, error) {
	if cur, ok := b.index[rec.PlayerID]; ok {
		if !rec.Better(cur.rec) {
			return metrics.CacheIgnored, nil
		}
		if _, found := b.order.Delete(cur); !found {
			return "", fmt.Errorf("%w: %q indexed but not ordered", errStructure, rec.PlayerID)
		}
		delete(b.index, rec.PlayerID)
		if err := b.insert(rec); err != nil {
			return "", err
		}
		return metrics.CacheUpdated, b.check()
	}

	if b.order.Len() < b.capacity {
		if err := b.insert(rec); err != nil {
			return "", err
		}
		return metrics.CacheInserted, b.check()
	}

	lowest, ok := b.order.Min()
	if !ok {
		return "", fmt.Errorf("%w: full board has no minimum", errStructure)
	}
	if !rec.Better(lowest.rec) {
		return metrics.CacheIgnored, nil
	}
	b.order.DeleteMin()
	delete(b.index, lowest.rec.PlayerID)
	if err := b.insert(rec); err != nil {
		return "", err
	}
	return metrics.CacheEvicted, b.check()
}

func (b *board) check() error {
	if b.order.Len() != len(b.index) {
		return fmt.Errorf("%w: %d ordered, %d indexed", errStructure, b.order.Len(), len(b.index))
	}
	if b.order.Len() > b.capacity {
		return fmt.Errorf("%w: %d entries exceed capacity %d", errStructure, b.order.Len(), b.capacity)
	}
	return nil
}

func (b *board) descending() []model.ScoreRecord {
	out := make([]model.ScoreRecord, 0, b.order.Len())
	b.order.Descend(func(it item) bool {
		out = append(out, it.rec)
		return true
	})
	return out
}

// Cache holds the top N scores seen by it, highest first. It is created
// empty and must be initialized before use; all methods are safe for
// concurrent use.
type Cache struct {
	mu     sync.RWMutex
	id     string
	degree int
	board  *board
	// version counts content changes; it only grows.
	version uint64
	logger  logger.Logger
}

// NewCache returns an uninitialized cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		id:     uuid.NewString(),
		degree: defaultDegree,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.String("leaderboard", c.id))
	return c
}

// ID returns the stable identifier of the cache.
func (c *Cache) ID() string { return c.id }

// Initialize resets the cache to hold at most capacity entries and streams
// seed through it in order. Calling it again discards the previous content.
func (c *Cache) Initialize(capacity int, seed []model.ScoreRecord) error {
	if capacity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}

	b := newBoard(capacity, c.degree)
	for i, rec := range seed {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("%w: seed record %d: %w", ErrCacheInitialization, i, err)
		}
		if _, err := b.apply(rec); err != nil {
			c.logger.Error(context.Background(), "leaderboard seed failed",
				logger.Int("position", i), logger.Error(err))
			return fmt.Errorf("%w: %w", ErrCacheInitialization, err)
		}
	}

	c.mu.Lock()
	c.board = b
	c.version++
	size := b.order.Len()
	c.mu.Unlock()

	metrics.UpdateCacheEntries(c.id, size)
	return nil
}

// Add offers one record to the cache. A held player is replaced only by a
// strictly higher score; a new player enters while there is room, or when
// full by evicting the lowest entry if it scores strictly higher.
func (c *Cache) Add(rec model.ScoreRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheUpdate, err)
	}

	c.mu.Lock()
	if c.board == nil {
		c.mu.Unlock()
		return ErrUninitialized
	}
	kind, err := c.board.apply(rec)
	if err == nil && kind != metrics.CacheIgnored {
		c.version++
	}
	size := c.board.order.Len()
	c.mu.Unlock()

	if err != nil {
		c.logger.Error(context.Background(), "leaderboard update failed",
			logger.String("player_id", rec.PlayerID), logger.Error(err))
		return fmt.Errorf("%w: %w", ErrCacheUpdate, err)
	}

	metrics.RecordCacheChange(kind)
	if kind != metrics.CacheIgnored {
		metrics.UpdateCacheEntries(c.id, size)
	}
	return nil
}

// TopPlayers returns a copy of the held records ordered by score, highest
// first. Equal scores are ordered by insertion, earliest first.
func (c *Cache) TopPlayers() ([]model.ScoreRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.board == nil {
		return nil, ErrUninitialized
	}
	return c.board.descending(), nil
}

// Versioned is TopPlayers together with the content version it reflects.
// Versions grow with every change, so of two results the higher version is
// the newer content.
func (c *Cache) Versioned() ([]model.ScoreRecord, uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.board == nil {
		return nil, 0, ErrUninitialized
	}
	return c.board.descending(), c.version, nil
}

// Initialized reports whether Initialize has succeeded at least once.
func (c *Cache) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.board != nil
}

// Capacity returns the configured maximum size, or 0 before Initialize.
func (c *Cache) Capacity() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.board == nil {
		return 0
	}
	return c.board.capacity
}

// Len returns the number of held entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.board == nil {
		return 0
	}
	return c.board.order.Len()
}
