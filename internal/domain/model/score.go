// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// ScoreRecord is one player's score as submitted by clients and persisted
// by the durable store. Values are immutable once constructed.
type ScoreRecord struct {
	PlayerID    string `json:"player_id"`
	Score       int64  `json:"score"`
	DisplayName string `json:"display_name,omitempty"`
}

// NewScoreRecord validates and builds a ScoreRecord.
func NewScoreRecord(playerID string, score int64, displayName string) (ScoreRecord, error) {
	rec := ScoreRecord{PlayerID: strings.TrimSpace(playerID), Score: score, DisplayName: displayName}
	if err := rec.Validate(); err != nil {
		return ScoreRecord{}, err
	}
	return rec, nil
}

// Validate reports whether the record can enter the pipeline.
func (r ScoreRecord) Validate() error {
	if strings.TrimSpace(r.PlayerID) == "" {
		return fmt.Errorf("%w: player_id is required", ErrInvalidRecord)
	}
	if len(r.PlayerID) > MaxPlayerIDLength {
		return fmt.Errorf("%w: player_id longer than %d bytes", ErrInvalidRecord, MaxPlayerIDLength)
	}
	return nil
}

// Better reports whether r strictly improves on other.
func (r ScoreRecord) Better(other ScoreRecord) bool {
	return r.Score > other.Score
}
