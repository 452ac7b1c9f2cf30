package service

import (
	"errors"

	"github.com/okian/scoreboard/internal/domain/leaderboard"
)

var (
	// ErrNotStarted is returned by operations that need Start first.
	ErrNotStarted = errors.New("service not started")
	// ErrStopped is returned by Start after Stop closed a store supplied with WithStore.
	ErrStopped = errors.New("service stopped; its store is closed")
	// ErrLeaderboardNotFound is returned for an unknown leaderboard id.
	ErrLeaderboardNotFound = leaderboard.ErrNotFound
	// ErrQueueFull is returned when the async queue rejects a record.
	ErrQueueFull = errors.New("score queue is full")
	// ErrSeed wraps store failures while seeding a new leaderboard.
	ErrSeed = errors.New("leaderboard seeding failed")
)
