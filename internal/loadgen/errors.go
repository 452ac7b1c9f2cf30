package loadgen

import "errors"

var (
	// ErrInvalidConfig is returned when the run configuration is unusable.
	ErrInvalidConfig = errors.New("invalid loadgen config")

	// ErrUnhealthy is returned when the service health check fails.
	ErrUnhealthy = errors.New("service unhealthy")

	// ErrUnexpectedStatus is returned for an HTTP status the client does not accept.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrMismatch is returned when the served leaderboard disagrees with the
	// scores that were submitted.
	ErrMismatch = errors.New("leaderboard mismatch")
)
