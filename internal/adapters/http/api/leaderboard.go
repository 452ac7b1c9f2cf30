package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/scoreboard/internal/adapters/realtime"
	"github.com/okian/scoreboard/internal/domain/leaderboard"
	"github.com/okian/scoreboard/internal/domain/types"
	"github.com/okian/scoreboard/pkg/logger"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	CreateLeaderboard(ctx context.Context, capacity int) (types.LeaderboardInfo, error)
	TopPlayers(ctx context.Context) ([]Entry, error)
	LeaderboardTop(ctx context.Context, id string) ([]Entry, error)
	Leaderboards(ctx context.Context) []types.LeaderboardInfo
	streamer
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps        LeaderboardDependencies
	defaultSize int
	logger      logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, defaultSize int, log logger.Logger) *LeaderboardHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &LeaderboardHandler{deps: deps, defaultSize: defaultSize, logger: log}
}

// HandleCreate handles POST /leaderboards?size=N.
func (h *LeaderboardHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_leaderboard"
	size := h.defaultSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		size = n
	}

	info, err := h.deps.CreateLeaderboard(r.Context(), size)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, info)
	case errors.Is(err, leaderboard.ErrInvalidCapacity):
		writeError(w, http.StatusBadRequest, "invalid_size", WrapKind(op, ErrBadRequest, err))
	default:
		h.logger.Error(r.Context(), "create leaderboard failed", logger.Int("size", size), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrInternal, err))
	}
}

// HandleList handles GET /leaderboards.
func (h *LeaderboardHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Leaderboards(r.Context()))
}

// HandleGetCurrent handles GET /leaderboard.
func (h *LeaderboardHandler) HandleGetCurrent(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	entries, err := h.deps.TopPlayers(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, entries)
	case errors.Is(err, leaderboard.ErrUninitialized):
		writeError(w, http.StatusBadRequest, "no_leaderboard", WrapKind(op, ErrNoLeaderboard, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// HandleGet handles GET /leaderboards/{id}.
func (h *LeaderboardHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard_by_id"
	entries, err := h.deps.LeaderboardTop(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, entries)
	case errors.Is(err, leaderboard.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// HandleStream handles GET /leaderboards/{id}/stream by upgrading to a
// websocket that receives a snapshot after every ingestion that changes the
// leaderboard, in increasing seq order.
func (h *LeaderboardHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	const op = "api.stream_leaderboard"
	id := r.PathValue("id")
	snap, err := h.deps.Snapshot(r.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, leaderboard.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
		return
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	if err := realtime.Stream(w, r, h.deps.Hub(), id, &snap); err != nil {
		h.logger.Debug(r.Context(), "leaderboard stream closed", logger.String("leaderboard", id), logger.Error(err))
	}
}
