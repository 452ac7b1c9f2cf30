// Package realtime pushes leaderboard snapshots to subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/okian/scoreboard/internal/domain/types"
	"github.com/okian/scoreboard/pkg/logger"
)

// Snapshot is the ranked content of one leaderboard at a point in time.
// Seq is the leaderboard's content version; zero means unsequenced.
type Snapshot struct {
	LeaderboardID string        `json:"leaderboard_id"`
	Seq           uint64        `json:"seq"`
	Entries       []types.Entry `json:"entries"`
	At            time.Time     `json:"at"`
}

// Hub fans snapshots out to subscribers of a leaderboard. Slow subscribers
// miss snapshots rather than block publishers, and a sequenced snapshot
// older than one already published for its leaderboard is discarded, so
// every subscriber sees versions in increasing order.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Snapshot
	seqs   map[string]uint64
	next   int
	logger logger.Logger
}

// NewHub returns an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:   map[string]map[int]chan Snapshot{},
		seqs:   map[string]uint64{},
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a buffered channel for leaderboardID.
func (h *Hub) Subscribe(leaderboardID string, buffer int) (int, <-chan Snapshot) {
	if buffer < 1 {
		buffer = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan Snapshot, buffer)
	if h.subs[leaderboardID] == nil {
		h.subs[leaderboardID] = map[int]chan Snapshot{}
	}
	h.subs[leaderboardID][id] = ch
	return id, ch
}

// Unsubscribe removes and closes the subscription.
func (h *Hub) Unsubscribe(leaderboardID string, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.subs[leaderboardID]
	if ch, ok := group[id]; ok {
		delete(group, id)
		close(ch)
	}
	if len(group) == 0 {
		delete(h.subs, leaderboardID)
		delete(h.seqs, leaderboardID)
	}
}

// Subscribers returns the number of subscriptions for leaderboardID.
func (h *Hub) Subscribers(leaderboardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[leaderboardID])
}

// Watched reports whether anyone listens to leaderboardID, letting
// publishers skip building snapshots nobody reads.
func (h *Hub) Watched(leaderboardID string) bool {
	return h.Subscribers(leaderboardID) > 0
}

// Publish delivers snap to every subscriber of its leaderboard and returns
// how many received it. Stale sequenced snapshots reach nobody.
func (h *Hub) Publish(ctx context.Context, snap Snapshot) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if snap.Seq != 0 {
		if snap.Seq <= h.seqs[snap.LeaderboardID] {
			h.logger.Debug(ctx, "stale snapshot dropped",
				logger.String("leaderboard", snap.LeaderboardID), logger.Any("seq", snap.Seq))
			return 0
		}
		if len(h.subs[snap.LeaderboardID]) > 0 {
			h.seqs[snap.LeaderboardID] = snap.Seq
		}
	}

	delivered := 0
	for _, ch := range h.subs[snap.LeaderboardID] {
		select {
		case ch <- snap:
			delivered++
		default:
			h.logger.Debug(ctx, "subscriber lagging, snapshot dropped", logger.String("leaderboard", snap.LeaderboardID))
		}
	}
	return delivered
}

// Marshal encodes snap for the wire.
func Marshal(snap Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}
