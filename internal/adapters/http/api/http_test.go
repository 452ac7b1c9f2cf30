package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scoreboard/internal/adapters/http/api"
	"github.com/okian/scoreboard/internal/adapters/realtime"
	"github.com/okian/scoreboard/internal/domain/leaderboard"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/types"
)

// mockDependencies is an in-memory stand-in for the service.
type mockDependencies struct {
	mu        sync.Mutex
	outcome   model.Outcome
	ingested  []model.ScoreRecord
	enqueued  []model.ScoreRecord
	queueErr  error
	createErr error
	capacity  int
	boards    map[string][]types.Entry
	current   string
	hub       *realtime.Hub
}

func newMockDependencies() *mockDependencies {
	return &mockDependencies{
		outcome: model.Success(),
		boards:  map[string][]types.Entry{},
		hub:     realtime.NewHub(),
	}
}

func (m *mockDependencies) Ingest(_ context.Context, rec model.ScoreRecord) model.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingested = append(m.ingested, rec)
	return m.outcome
}

func (m *mockDependencies) Enqueue(_ context.Context, rec model.ScoreRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if m.queueErr != nil {
		return m.queueErr
	}
	m.enqueued = append(m.enqueued, rec)
	return nil
}

func (m *mockDependencies) CreateLeaderboard(_ context.Context, capacity int) (types.LeaderboardInfo, error) {
	if capacity <= 0 || capacity > 100 {
		return types.LeaderboardInfo{}, fmt.Errorf("%w: %d", leaderboard.ErrInvalidCapacity, capacity)
	}
	if m.createErr != nil {
		return types.LeaderboardInfo{}, m.createErr
	}
	m.capacity = capacity
	id := fmt.Sprintf("lb-%d", len(m.boards)+1)
	m.boards[id] = []types.Entry{}
	m.current = id
	return types.LeaderboardInfo{ID: id, Capacity: capacity, Current: true}, nil
}

func (m *mockDependencies) TopPlayers(ctx context.Context) ([]types.Entry, error) {
	if m.current == "" {
		return nil, leaderboard.ErrUninitialized
	}
	return m.LeaderboardTop(ctx, m.current)
}

func (m *mockDependencies) LeaderboardTop(_ context.Context, id string) ([]types.Entry, error) {
	e, ok := m.boards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", leaderboard.ErrNotFound, id)
	}
	return e, nil
}

func (m *mockDependencies) Leaderboards(context.Context) []types.LeaderboardInfo {
	var out []types.LeaderboardInfo
	for id := range m.boards {
		out = append(out, types.LeaderboardInfo{ID: id, Current: id == m.current})
	}
	return out
}

func (m *mockDependencies) Snapshot(ctx context.Context, id string) (realtime.Snapshot, error) {
	e, err := m.LeaderboardTop(ctx, id)
	if err != nil {
		return realtime.Snapshot{}, err
	}
	return realtime.Snapshot{LeaderboardID: id, Entries: e}, nil
}

func (m *mockDependencies) Hub() *realtime.Hub { return m.hub }

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats(context.Context) map[string]any { return m.stats }

func newMux(deps *mockDependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"started": true}}, opts...).
		Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
	return v
}

func TestScores(t *testing.T) {
	Convey("Given the API server", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps)

		Convey("When a valid score is posted", func() {
			w := do(mux, http.MethodPost, "/scores", `{"player_id":" p1 ","score":42,"display_name":"Ann"}`)

			Convey("Then it is ingested and the outcome returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[model.Outcome](w), ShouldResemble, model.Success())
				So(deps.ingested, ShouldResemble, []model.ScoreRecord{{PlayerID: "p1", Score: 42, DisplayName: "Ann"}})
			})
		})

		Convey("When ingestion fails", func() {
			deps.outcome = model.Failure()
			w := do(mux, http.MethodPost, "/scores", `{"player_id":"p1","score":1}`)

			Convey("Then the failure outcome is returned with 500", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode[model.Outcome](w).Message, ShouldEqual, model.MessageFailed)
			})
		})

		Convey("When the body is malformed or the player is missing", func() {
			for _, body := range []string{`{`, `{"score":1}`, `{"player_id":"  ","score":1}`, `{"player_id":"p","score":"high"}`} {
				w := do(mux, http.MethodPost, "/scores", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode[map[string]string](w)["code"], ShouldEqual, "bad_request")
			}
			So(deps.ingested, ShouldBeEmpty)
		})

		Convey("When a score is posted asynchronously", func() {
			w := do(mux, http.MethodPost, "/scores/async", `{"player_id":"p1","score":5}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.enqueued, ShouldHaveLength, 1)
		})

		Convey("When the queue is full", func() {
			deps.queueErr = errors.New("score queue is full")
			w := do(mux, http.MethodPost, "/scores/async", `{"player_id":"p1","score":5}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(decode[map[string]string](w)["code"], ShouldEqual, "backpressure")
		})

		Convey("When the wrong method is used", func() {
			w := do(mux, http.MethodGet, "/scores", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestLeaderboards(t *testing.T) {
	Convey("Given the API server", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps, api.WithDefaultLeaderboardSize(7))

		Convey("When reading before any leaderboard exists", func() {
			w := do(mux, http.MethodGet, "/leaderboard", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[map[string]string](w)["code"], ShouldEqual, "no_leaderboard")
		})

		Convey("When creating with an explicit size", func() {
			w := do(mux, http.MethodPost, "/leaderboards?size=3", "")

			Convey("Then it is created", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				info := decode[types.LeaderboardInfo](w)
				So(info.Capacity, ShouldEqual, 3)
				So(info.Current, ShouldBeTrue)
			})

			Convey("Then it can be read as current and by id", func() {
				So(do(mux, http.MethodGet, "/leaderboard", "").Code, ShouldEqual, http.StatusOK)
				So(do(mux, http.MethodGet, "/leaderboards/lb-1", "").Code, ShouldEqual, http.StatusOK)
				So(decode[[]types.LeaderboardInfo](do(mux, http.MethodGet, "/leaderboards", "")), ShouldHaveLength, 1)
			})
		})

		Convey("When creating without a size", func() {
			w := do(mux, http.MethodPost, "/leaderboards", "")
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(deps.capacity, ShouldEqual, 7)
		})

		Convey("When the size is invalid", func() {
			for _, q := range []string{"0", "-4", "101", "ten"} {
				w := do(mux, http.MethodPost, "/leaderboards?size="+q, "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When creation fails internally", func() {
			deps.createErr = errors.New("seed query failed")
			w := do(mux, http.MethodPost, "/leaderboards?size=3", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(decode[map[string]string](w)["code"], ShouldEqual, "internal_error")
		})

		Convey("When the leaderboard id is unknown", func() {
			So(do(mux, http.MethodGet, "/leaderboards/missing", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/leaderboards/missing/stream", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestStream(t *testing.T) {
	Convey("Given a leaderboard served over a real listener", t, func() {
		deps := newMockDependencies()
		deps.boards["lb-1"] = []types.Entry{{Rank: 1, PlayerID: "p1", Score: 10}}
		srv := httptest.NewServer(newMux(deps))
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/leaderboards/lb-1/stream"
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		So(resp.StatusCode, ShouldEqual, http.StatusSwitchingProtocols)
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var first realtime.Snapshot
		So(conn.ReadJSON(&first), ShouldBeNil)
		So(first.Entries[0].PlayerID, ShouldEqual, "p1")

		deps.hub.Publish(context.Background(), realtime.Snapshot{
			LeaderboardID: "lb-1",
			Entries:       []types.Entry{{Rank: 1, PlayerID: "p2", Score: 20}},
		})
		var next realtime.Snapshot
		So(conn.ReadJSON(&next), ShouldBeNil)
		So(next.Entries[0].PlayerID, ShouldEqual, "p2")
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given the API server", t, func() {
		mux := newMux(newMockDependencies())

		Convey("Then /healthz serves Prometheus metrics", func() {
			do(mux, http.MethodPost, "/scores", `{"player_id":"p1","score":1}`)
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "scoreboard_")
		})

		Convey("Then /stats returns the provider's stats", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[map[string]any](w)["started"], ShouldEqual, true)
		})

		Convey("Then unknown paths are not found", func() {
			So(do(mux, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestErrorHelpers(t *testing.T) {
	Convey("Given op-scoped errors", t, func() {
		cause := errors.New("boom")

		So(api.Wrap("op", nil), ShouldBeNil)
		So(errors.Is(api.Wrap("op", cause), cause), ShouldBeTrue)

		err := api.WrapKind("api.x", api.ErrBadRequest, cause)
		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "api.x: bad request: boom")

		So(api.NewKind("api.y", api.ErrNotFound).Error(), ShouldEqual, "api.y: not found")
	})
}
