package memory

import "github.com/okian/scoreboard/internal/domain/model"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithRecords preloads the store, keeping the highest score per player.
func WithRecords(records ...model.ScoreRecord) Option {
	return func(s *Store) {
		for _, r := range records {
			if old, ok := s.byID[r.PlayerID]; ok {
				if r.Score <= old.Score {
					continue
				}
				s.root = deleteNode(s.root, r.PlayerID, old.Score)
			}
			s.byID[r.PlayerID] = r
			s.root = insert(s.root, r.PlayerID, r.Score)
		}
	}
}
