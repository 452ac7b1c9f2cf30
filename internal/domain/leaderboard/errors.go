package leaderboard

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for leaderboard caches and the registry.
var (
	// ErrInvalidCapacity is an input error: capacity must be positive.
	ErrInvalidCapacity = errors.New("leaderboard capacity must be greater than zero")
	// ErrUninitialized is returned when a cache is used before Initialize.
	ErrUninitialized = errors.New("leaderboard not initialized")
	// ErrCacheInitialization signals a structural failure while building a cache.
	ErrCacheInitialization = errors.New("leaderboard cache initialization failed")
	// ErrCacheUpdate signals a structural failure while updating a cache.
	ErrCacheUpdate = errors.New("leaderboard cache update failed")
	// ErrNotFound is returned when no leaderboard has the requested id.
	ErrNotFound = errors.New("leaderboard not found")
	// ErrLeaderboardUpdate is matched by every *UpdateError.
	ErrLeaderboardUpdate = errors.New("leaderboard update failed")

	errStructure = errors.New("order and index out of sync")
)

// MemberFailure is one cache that rejected a broadcast record.
type MemberFailure struct {
	LeaderboardID string
	Err           error
}

// UpdateError aggregates every member failure of one Broadcast.
type UpdateError struct {
	PlayerID string
	Failures []MemberFailure
}

func (e *UpdateError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.LeaderboardID, f.Err)
	}
	return fmt.Sprintf("%v for player %q (%d of the registered leaderboards): %s",
		ErrLeaderboardUpdate, e.PlayerID, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes ErrLeaderboardUpdate and every member cause to errors.Is/As.
func (e *UpdateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrLeaderboardUpdate)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
