package loadgen

import (
	"fmt"

	"github.com/okian/scoreboard/internal/domain/types"
)

// Verify checks a served leaderboard of the given capacity against the best
// score of every generated player. Entries for players this run did not
// generate are allowed, since a leaderboard may be seeded from earlier data.
//
// The checks are: ranks are dense and scores never increase; generated
// players appear with their best score; and every generated player whose
// best beats the lowest entry of a full board is present.
func Verify(best map[string]int64, entries []types.Entry, capacity int) error {
	if len(entries) > capacity {
		return fmt.Errorf("%w: %d entries exceed capacity %d", ErrMismatch, len(entries), capacity)
	}

	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: position %d has rank %d", ErrMismatch, i, e.Rank)
		}
		if i > 0 && e.Score > entries[i-1].Score {
			return fmt.Errorf("%w: rank %d (%d) beats rank %d (%d)", ErrMismatch, e.Rank, e.Score, entries[i-1].Rank, entries[i-1].Score)
		}
		if seen[e.PlayerID] {
			return fmt.Errorf("%w: player %s listed twice", ErrMismatch, e.PlayerID)
		}
		seen[e.PlayerID] = true

		if want, ok := best[e.PlayerID]; ok && e.Score != want {
			return fmt.Errorf("%w: player %s has %d, best submitted %d", ErrMismatch, e.PlayerID, e.Score, want)
		}
	}

	full := len(entries) == capacity
	var floor int64
	if full {
		floor = entries[len(entries)-1].Score
	}
	for id, score := range best {
		if seen[id] {
			continue
		}
		if !full || score > floor {
			return fmt.Errorf("%w: player %s with %d is missing", ErrMismatch, id, score)
		}
	}
	return nil
}
