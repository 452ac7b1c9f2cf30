// Package memory provides an in-process durable store for score records.
// State lives only as long as the process; it backs tests and single-node
// deployments without an external database.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/scoreboard/internal/domain/ingest"
	"github.com/okian/scoreboard/internal/domain/model"
)

// Ordering: score DESC, then playerID ASC. "less" means ranks earlier, so
// in-order traversal yields players from best to worst.

type node struct {
	id    string
	score int64
	prio  uint64
	left  *node
	right *node
}

func less(aScore int64, aID string, bScore int64, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	return y
}

// priority derives a heap priority from the player id so that tree shape is
// independent of insertion order and score distribution.
func priority(id string) uint64 { return xxhash.Sum64String(id) }

func insert(n *node, id string, score int64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: priority(id)}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	return n
}

func deleteNode(n *node, id string, score int64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	return n
}

// collectTopN appends up to limit records in rank order.
func collectTopN(n *node, limit int, byID map[string]model.ScoreRecord, out *[]model.ScoreRecord) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, byID, out)
	if len(*out) < limit {
		if rec, ok := byID[n.id]; ok {
			*out = append(*out, rec)
		}
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, byID, out)
	}
}

// Store is a treap-ordered, map-indexed score store.
type Store struct {
	mu   sync.RWMutex
	root *node
	byID map[string]model.ScoreRecord
}

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{byID: make(map[string]model.ScoreRecord)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindCurrentScore returns the stored record for playerID.
func (s *Store) FindCurrentScore(ctx context.Context, playerID string) (model.ScoreRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoreRecord{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[playerID]
	return rec, ok, nil
}

// Upsert inserts rec when exists is false and replaces the stored record
// otherwise. The store does not compare scores.
func (s *Store) Upsert(ctx context.Context, rec model.ScoreRecord, exists bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, present := s.byID[rec.PlayerID]
	switch {
	case present && !exists:
		return fmt.Errorf("%w: %s", ingest.ErrRecordExists, rec.PlayerID)
	case !present && exists:
		return fmt.Errorf("%w: %s", ingest.ErrRecordMissing, rec.PlayerID)
	case present:
		s.root = deleteNode(s.root, rec.PlayerID, old.Score)
	}
	s.byID[rec.PlayerID] = rec
	s.root = insert(s.root, rec.PlayerID, rec.Score)
	return nil
}

// TopScores returns up to n records, best first.
func (s *Store) TopScores(ctx context.Context, n int) ([]model.ScoreRecord, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ScoreRecord, 0, min(n, len(s.byID)))
	collectTopN(s.root, n, s.byID, &out)
	return out, nil
}

// Count returns the number of stored players.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// Close releases nothing; it satisfies the store lifecycle used by the app.
func (s *Store) Close() error { return nil }
