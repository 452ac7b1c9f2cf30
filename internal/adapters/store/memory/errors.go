package memory

import "errors"

// ErrInvalidLimit is returned by TopScores for a non-positive limit.
var ErrInvalidLimit = errors.New("invalid leaderboard limit")
