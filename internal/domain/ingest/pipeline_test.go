package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/scoreboard/internal/domain/ingest"
	"github.com/okian/scoreboard/internal/domain/leaderboard"
	"github.com/okian/scoreboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeStore is a map-backed store with injectable failures.
type fakeStore struct {
	mu        sync.Mutex
	data      map[string]model.ScoreRecord
	findErr   error
	upsertErr error
	delay     time.Duration
	upserts   int
	modes     []bool
}

func newFakeStore(seed ...model.ScoreRecord) *fakeStore {
	s := &fakeStore{data: map[string]model.ScoreRecord{}}
	for _, r := range seed {
		s.data[r.PlayerID] = r
	}
	return s
}

func (s *fakeStore) FindCurrentScore(ctx context.Context, id string) (model.ScoreRecord, bool, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return model.ScoreRecord{}, false, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return model.ScoreRecord{}, false, s.findErr
	}
	r, ok := s.data[id]
	return r, ok, nil
}

func (s *fakeStore) Upsert(_ context.Context, rec model.ScoreRecord, exists bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.modes = append(s.modes, exists)
	if s.upsertErr != nil {
		return s.upsertErr
	}
	_, present := s.data[rec.PlayerID]
	if present && !exists {
		return ingest.ErrRecordExists
	}
	if !present && exists {
		return ingest.ErrRecordMissing
	}
	s.data[rec.PlayerID] = rec
	return nil
}

func (s *fakeStore) get(id string) (model.ScoreRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data[id]
	return r, ok
}

// countingBroadcaster wraps a registry and counts calls.
type countingBroadcaster struct {
	mu    sync.Mutex
	calls int
	inner ingest.Broadcaster
}

func (b *countingBroadcaster) Broadcast(ctx context.Context, rec model.ScoreRecord) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return b.inner.Broadcast(ctx, rec)
}

type brokenMember struct{}

func (brokenMember) ID() string                  { return "broken" }
func (brokenMember) Add(model.ScoreRecord) error { return leaderboard.ErrCacheUpdate }

func topOf(c *leaderboard.Cache) []model.ScoreRecord {
	got, err := c.TopPlayers()
	So(err, ShouldBeNil)
	return got
}

func TestNewPipeline(t *testing.T) {
	Convey("Given missing dependencies", t, func() {
		_, err := ingest.NewPipeline(nil, leaderboard.NewRegistry())
		So(errors.Is(err, ingest.ErrMissingDependency), ShouldBeTrue)

		_, err = ingest.NewPipeline(newFakeStore(), nil)
		So(errors.Is(err, ingest.ErrMissingDependency), ShouldBeTrue)
	})
}

func TestPipelineIngest(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pipeline with two leaderboards", t, func() {
		store := newFakeStore()
		reg := leaderboard.NewRegistry()
		big := leaderboard.NewCache()
		small := leaderboard.NewCache()
		So(big.Initialize(10, nil), ShouldBeNil)
		So(small.Initialize(1, nil), ShouldBeNil)
		reg.Register(big)
		reg.Register(small)
		fan := &countingBroadcaster{inner: reg}

		p, err := ingest.NewPipeline(store, fan)
		So(err, ShouldBeNil)

		Convey("When a new player is ingested", func() {
			out := p.Ingest(ctx, model.ScoreRecord{PlayerID: "p1", Score: 10})

			Convey("Then it is stored in insert mode and broadcast", func() {
				So(out, ShouldResemble, model.Success())
				stored, ok := store.get("p1")
				So(ok, ShouldBeTrue)
				So(stored.Score, ShouldEqual, 10)
				So(store.modes, ShouldResemble, []bool{false})
				So(topOf(big), ShouldHaveLength, 1)
				So(topOf(small)[0].PlayerID, ShouldEqual, "p1")
			})
		})

		Convey("When a known player improves", func() {
			p.Ingest(ctx, model.ScoreRecord{PlayerID: "p1", Score: 10})
			out := p.Ingest(ctx, model.ScoreRecord{PlayerID: "p1", Score: 30})

			Convey("Then it is stored in update mode", func() {
				So(out.OK(), ShouldBeTrue)
				So(store.modes, ShouldResemble, []bool{false, true})
				stored, _ := store.get("p1")
				So(stored.Score, ShouldEqual, 30)
			})
		})

		Convey("When the stored score is already higher", func() {
			store.data["p1"] = model.ScoreRecord{PlayerID: "p1", Score: 500}
			out := p.Ingest(ctx, model.ScoreRecord{PlayerID: "p1", Score: 40})

			Convey("Then the store is not written but every cache still sees the record", func() {
				So(out, ShouldResemble, model.Success())
				So(store.upserts, ShouldEqual, 0)
				stored, _ := store.get("p1")
				So(stored.Score, ShouldEqual, 500)
				So(fan.calls, ShouldEqual, 1)
				So(topOf(big)[0].Score, ShouldEqual, 40)
				So(topOf(small)[0].Score, ShouldEqual, 40)
			})
		})

		Convey("When the stored score is equal", func() {
			store.data["p1"] = model.ScoreRecord{PlayerID: "p1", Score: 40}
			out := p.Ingest(ctx, model.ScoreRecord{PlayerID: "p1", Score: 40})
			So(out.OK(), ShouldBeTrue)
			So(store.upserts, ShouldEqual, 0)
		})

		Convey("When the record is invalid", func() {
			out := p.Ingest(ctx, model.ScoreRecord{PlayerID: "", Score: 1})

			Convey("Then it fails without touching store or caches", func() {
				So(out, ShouldResemble, model.Failure())
				So(store.upserts, ShouldEqual, 0)
				So(fan.calls, ShouldEqual, 0)
			})
		})

		Convey("When the lookup fails", func() {
			store.findErr = errors.New("connection refused")
			out := p.Ingest(ctx, model.ScoreRecord{PlayerID: "p1", Score: 1})

			Convey("Then the pipeline stops before writing or broadcasting", func() {
				So(out.Message, ShouldEqual, model.MessageFailed)
				So(store.upserts, ShouldEqual, 0)
				So(fan.calls, ShouldEqual, 0)
			})
		})

		Convey("When the write fails", func() {
			store.upsertErr = errors.New("disk full")
			out := p.Ingest(ctx, model.ScoreRecord{PlayerID: "p1", Score: 1})

			Convey("Then the pipeline stops before broadcasting", func() {
				So(out.OK(), ShouldBeFalse)
				So(fan.calls, ShouldEqual, 0)
				So(big.Len(), ShouldEqual, 0)
			})
		})

		Convey("When one leaderboard fails during fan-out", func() {
			reg.Register(brokenMember{})
			out := p.Ingest(ctx, model.ScoreRecord{PlayerID: "p9", Score: 99})

			Convey("Then the outcome is failure but the write and other caches are kept", func() {
				So(out, ShouldResemble, model.Failure())
				stored, ok := store.get("p9")
				So(ok, ShouldBeTrue)
				So(stored.Score, ShouldEqual, 99)
				So(topOf(big)[0].PlayerID, ShouldEqual, "p9")
				So(topOf(small)[0].PlayerID, ShouldEqual, "p9")
			})
		})
	})

	Convey("Given a slow store and a short timeout", t, func() {
		store := newFakeStore()
		store.delay = 200 * time.Millisecond
		p, err := ingest.NewPipeline(store, leaderboard.NewRegistry(), ingest.WithStoreTimeout(10*time.Millisecond))
		So(err, ShouldBeNil)

		start := time.Now()
		out := p.Ingest(ctx, model.ScoreRecord{PlayerID: "p1", Score: 1})

		Convey("Then the call is abandoned with a failure", func() {
			So(out.OK(), ShouldBeFalse)
			So(time.Since(start), ShouldBeLessThan, 150*time.Millisecond)
		})
	})
}

func TestPipelineConcurrentSamePlayer(t *testing.T) {
	Convey("Given many concurrent updates for the same players", t, func() {
		store := newFakeStore()
		reg := leaderboard.NewRegistry()
		c := leaderboard.NewCache()
		So(c.Initialize(5, nil), ShouldBeNil)
		reg.Register(c)
		p, err := ingest.NewPipeline(store, reg, ingest.WithLockStripes(4))
		So(err, ShouldBeNil)

		var wg sync.WaitGroup
		results := make(chan model.Outcome, 400)
		for i := 0; i < 400; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results <- p.Ingest(context.Background(), model.ScoreRecord{
					PlayerID: fmt.Sprintf("p%d", i%3),
					Score:    int64(i),
				})
			}(i)
		}
		wg.Wait()
		close(results)

		Convey("Then every ingestion succeeds and the store keeps each maximum", func() {
			for out := range results {
				So(out.OK(), ShouldBeTrue)
			}
			for id, want := range map[string]int64{"p0": 399, "p1": 397, "p2": 398} {
				stored, ok := store.get(id)
				So(ok, ShouldBeTrue)
				So(stored.Score, ShouldEqual, want)
			}
			top := topOf(c)
			So(top, ShouldHaveLength, 3)
			So(top[0].Score, ShouldEqual, 399)
		})
	})
}
