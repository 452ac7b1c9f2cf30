// Package types contains common types used across the application
package types

import "github.com/okian/scoreboard/internal/domain/model"

// Entry represents a leaderboard entry
type Entry struct {
	Rank        int    `json:"rank"`
	PlayerID    string `json:"player_id"`
	Score       int64  `json:"score"`
	DisplayName string `json:"display_name,omitempty"`
}

// LeaderboardInfo describes one registered leaderboard.
type LeaderboardInfo struct {
	ID       string `json:"id"`
	Capacity int    `json:"capacity"`
	Size     int    `json:"size"`
	Current  bool   `json:"current"`
}

// Ranked assigns 1-based positional ranks to records already ordered best
// first. Equal scores keep their relative order and receive distinct ranks.
func Ranked(records []model.ScoreRecord) []Entry {
	entries := make([]Entry, len(records))
	for i, r := range records {
		entries[i] = Entry{
			Rank:        i + 1,
			PlayerID:    r.PlayerID,
			Score:       r.Score,
			DisplayName: r.DisplayName,
		}
	}
	return entries
}
