package loadgen

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/okian/scoreboard/internal/domain/model"
)

// Generate builds cfg.Scores records spread across cfg.Players players.
// Every player receives at least one score. The same seed yields the same
// players and scores.
func Generate(cfg *Config, rng *rand.Rand) ([]model.ScoreRecord, error) {
	players := make([]model.ScoreRecord, cfg.Players)
	for i := range players {
		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			return nil, fmt.Errorf("player id: %w", err)
		}
		players[i] = model.ScoreRecord{PlayerID: id.String(), DisplayName: fmt.Sprintf("player-%d", i)}
	}

	records := make([]model.ScoreRecord, 0, cfg.Scores)
	for i := 0; i < cfg.Scores; i++ {
		p := players[i%len(players)]
		if i >= len(players) {
			p = players[rng.Intn(len(players))]
		}
		p.Score = rng.Int63n(cfg.MaxScore)
		records = append(records, p)
	}
	rng.Shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })
	return records, nil
}

// Bests returns each player's highest generated score.
func Bests(records []model.ScoreRecord) map[string]int64 {
	best := make(map[string]int64, len(records))
	for _, r := range records {
		if cur, ok := best[r.PlayerID]; !ok || r.Score > cur {
			best[r.PlayerID] = r.Score
		}
	}
	return best
}
