package leaderboard

import (
	"context"
	"sync"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

// Member is anything the registry can deliver score records to.
type Member interface {
	ID() string
	Add(rec model.ScoreRecord) error
}

// Registry is the ordered set of leaderboards that receive every ingested
// record. Members are shared with whoever registered them.
type Registry struct {
	mu      sync.RWMutex
	members []Member
	logger  logger.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{logger: logger.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends m. Registering the same member twice is allowed and
// makes it receive every broadcast twice.
func (r *Registry) Register(m Member) {
	if m == nil {
		return
	}
	r.mu.Lock()
	r.members = append(r.members, m)
	n := len(r.members)
	r.mu.Unlock()

	metrics.UpdateLeaderboardsRegistered(n)
}

// Broadcast delivers rec to every member in registration order. A failing
// member does not stop delivery to the rest; all failures are returned
// together as an *UpdateError.
func (r *Registry) Broadcast(ctx context.Context, rec model.ScoreRecord) error {
	members := r.Members()

	var failures []MemberFailure
	for _, m := range members {
		if err := m.Add(rec); err != nil {
			r.logger.Warn(ctx, "leaderboard rejected score",
				logger.String("leaderboard", m.ID()),
				logger.String("player_id", rec.PlayerID),
				logger.Error(err))
			failures = append(failures, MemberFailure{LeaderboardID: m.ID(), Err: err})
		}
	}

	if len(failures) == 0 {
		return nil
	}
	metrics.RecordBroadcastFailures(len(failures))
	return &UpdateError{PlayerID: rec.PlayerID, Failures: failures}
}

// Members returns a snapshot of the registered members.
func (r *Registry) Members() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, len(r.members))
	copy(out, r.members)
	return out
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Lookup returns the first member registered under id.
func (r *Registry) Lookup(id string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.members {
		if m.ID() == id {
			return m, true
		}
	}
	return nil, false
}
