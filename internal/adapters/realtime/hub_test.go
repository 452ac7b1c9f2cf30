package realtime_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scoreboard/internal/adapters/realtime"
	"github.com/okian/scoreboard/internal/domain/types"
)

func snapshot(id string, players ...string) realtime.Snapshot {
	entries := make([]types.Entry, len(players))
	for i, p := range players {
		entries[i] = types.Entry{Rank: i + 1, PlayerID: p, Score: int64(100 - i)}
	}
	return realtime.Snapshot{LeaderboardID: id, Entries: entries, At: time.Now()}
}

func TestHub(t *testing.T) {
	ctx := context.Background()

	Convey("Given subscribers on two leaderboards", t, func() {
		h := realtime.NewHub()
		idA, chA := h.Subscribe("a", 1)
		_, chB := h.Subscribe("b", 1)

		So(h.Watched("a"), ShouldBeTrue)
		So(h.Watched("c"), ShouldBeFalse)

		Convey("When a snapshot is published for one of them", func() {
			n := h.Publish(ctx, snapshot("a", "p1"))

			Convey("Then only that leaderboard's subscribers receive it", func() {
				So(n, ShouldEqual, 1)
				got := <-chA
				So(got.Entries[0].PlayerID, ShouldEqual, "p1")
				So(len(chB), ShouldEqual, 0)
			})
		})

		Convey("When a subscriber lags", func() {
			So(h.Publish(ctx, snapshot("a", "p1")), ShouldEqual, 1)
			So(h.Publish(ctx, snapshot("a", "p2")), ShouldEqual, 0)

			Convey("Then newer snapshots are dropped instead of blocking", func() {
				So((<-chA).Entries[0].PlayerID, ShouldEqual, "p1")
			})
		})

		Convey("When sequenced snapshots arrive out of order", func() {
			_, chA2 := h.Subscribe("a", 4)
			newer := snapshot("a", "p2", "p1")
			newer.Seq = 3
			older := snapshot("a", "p1")
			older.Seq = 2

			So(h.Publish(ctx, newer), ShouldEqual, 2)
			So(h.Publish(ctx, older), ShouldEqual, 0)
			So(h.Publish(ctx, newer), ShouldEqual, 0)

			Convey("Then subscribers only see the newer version", func() {
				got := <-chA2
				So(got.Seq, ShouldEqual, 3)
				So(len(chA2), ShouldEqual, 0)
			})
		})

		Convey("When unsubscribed", func() {
			h.Unsubscribe("a", idA)
			_, ok := <-chA

			Convey("Then the channel is closed and the leaderboard unwatched", func() {
				So(ok, ShouldBeFalse)
				So(h.Subscribers("a"), ShouldEqual, 0)
				So(h.Publish(ctx, snapshot("a", "p1")), ShouldEqual, 0)
			})
		})
	})
}

func TestStream(t *testing.T) {
	Convey("Given a websocket stream for a leaderboard", t, func() {
		h := realtime.NewHub()
		initial := snapshot("lb", "p1")
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = realtime.Stream(w, r, h, "lb", &initial)
		}))
		defer srv.Close()

		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		read := func() realtime.Snapshot {
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, b, err := conn.ReadMessage()
			So(err, ShouldBeNil)
			var s realtime.Snapshot
			So(json.Unmarshal(b, &s), ShouldBeNil)
			return s
		}

		Convey("Then the current snapshot arrives first", func() {
			So(read().Entries[0].PlayerID, ShouldEqual, "p1")

			Convey("And published snapshots follow", func() {
				// Subscription happens before the initial write, so the
				// stream is live once the first frame was read.
				So(h.Subscribers("lb"), ShouldEqual, 1)
				h.Publish(context.Background(), snapshot("lb", "p2", "p1"))

				s := read()
				So(s.LeaderboardID, ShouldEqual, "lb")
				So(s.Entries, ShouldHaveLength, 2)
				So(s.Entries[0].PlayerID, ShouldEqual, "p2")
			})
		})
	})
}

func TestStreamSkipsStaleSnapshots(t *testing.T) {
	Convey("Given a stream whose initial snapshot is at seq 5", t, func() {
		h := realtime.NewHub()
		initial := snapshot("lb", "p1")
		initial.Seq = 5
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = realtime.Stream(w, r, h, "lb", &initial)
		}))
		defer srv.Close()

		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		var first realtime.Snapshot
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		So(conn.ReadJSON(&first), ShouldBeNil)
		So(first.Seq, ShouldEqual, 5)

		Convey("When an older snapshot is published before a newer one", func() {
			stale := snapshot("lb", "p0")
			stale.Seq = 4
			fresh := snapshot("lb", "p2", "p1")
			fresh.Seq = 6
			So(h.Publish(context.Background(), stale), ShouldEqual, 1)
			So(h.Publish(context.Background(), fresh), ShouldEqual, 1)

			Convey("Then the client only receives the newer one", func() {
				var next realtime.Snapshot
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				So(conn.ReadJSON(&next), ShouldBeNil)
				So(next.Seq, ShouldEqual, 6)
				So(next.Entries[0].PlayerID, ShouldEqual, "p2")
			})
		})
	})
}
