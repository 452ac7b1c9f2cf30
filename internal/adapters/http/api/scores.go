package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/scoreboard/internal/domain/model"
)

const maxScoreBody = 1 << 16

// ScoreDependencies defines the interface for score submission.
type ScoreDependencies interface {
	// Ingest runs a record through the pipeline synchronously.
	Ingest(ctx context.Context, rec model.ScoreRecord) model.Outcome
	// Enqueue hands a record to the worker pool. Invalid records return
	// model.ErrInvalidRecord; any other error means backpressure.
	Enqueue(ctx context.Context, rec model.ScoreRecord) error
}

// ScoresHandler handles score submissions.
type ScoresHandler struct {
	deps ScoreDependencies
}

type acceptedResponse struct {
	Status string `json:"status"`
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

// HandlePostScore handles POST /scores. The body is a score record; the
// response is the pipeline outcome.
func (h *ScoresHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	rec, err := decodeScore(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	writeOutcome(w, h.deps.Ingest(r.Context(), rec))
}

// HandlePostScoreAsync handles POST /scores/async.
func (h *ScoresHandler) HandlePostScoreAsync(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score_async"
	rec, err := decodeScore(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.Enqueue(r.Context(), rec); err != nil {
		if errors.Is(err, model.ErrInvalidRecord) {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

func decodeScore(w http.ResponseWriter, r *http.Request) (model.ScoreRecord, error) {
	var req model.ScoreRecord
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScoreBody))
	if err := dec.Decode(&req); err != nil {
		return model.ScoreRecord{}, err
	}
	return model.NewScoreRecord(req.PlayerID, req.Score, req.DisplayName)
}
