package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/scoreboard/internal/config"
	"github.com/okian/scoreboard/internal/domain/types"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func waitReady(url string) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			return resp.StatusCode == http.StatusOK
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestNewApp(t *testing.T) {
	convey.Convey("Given the command line app", t, func() {
		app := newApp()

		convey.So(app.Name, convey.ShouldEqual, "scoreboard")
		convey.So(app.Action, convey.ShouldNotBeNil)

		names := map[string]bool{}
		for _, f := range app.Flags {
			for _, n := range f.Names() {
				names[n] = true
			}
		}
		convey.So(names["config"], convey.ShouldBeTrue)
		convey.So(names["c"], convey.ShouldBeTrue)
		convey.So(names["addr"], convey.ShouldBeTrue)
		convey.So(names["log-level"], convey.ShouldBeTrue)
	})

	convey.Convey("Given a missing config file", t, func() {
		err := newApp().Run([]string{"scoreboard", "--config", "/nonexistent/scoreboard.yaml"})
		convey.So(err, convey.ShouldNotBeNil)
		convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
	})
}

func TestKafkaConfig(t *testing.T) {
	convey.Convey("Given kafka settings from config", t, func() {
		got := kafkaConfig(config.KafkaConfig{
			Enabled:          true,
			BootstrapServers: "broker:9092",
			Topic:            "scores",
			GroupID:          "g1",
			DLQTopic:         "scores-dlq",
			AutoOffsetReset:  "latest",
			MaxConcurrency:   4,
		})

		convey.So(got.BootstrapServers, convey.ShouldEqual, "broker:9092")
		convey.So(got.Topic, convey.ShouldEqual, "scores")
		convey.So(got.GroupID, convey.ShouldEqual, "g1")
		convey.So(got.DLQTopic, convey.ShouldEqual, "scores-dlq")
		convey.So(got.AutoOffsetReset, convey.ShouldEqual, "latest")
		convey.So(got.MaxConcurrency, convey.ShouldEqual, 4)
		convey.So(got.WithDefaults().Validate(), convey.ShouldBeNil)
	})
}

func TestNewMux(t *testing.T) {
	convey.Convey("Given a started service behind the mux", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.DefaultLeaderboardSize = 2

		svc := newService(cfg, nil, logger.Nop())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		srv := httptest.NewServer(newMux(ctx, cfg, svc, logger.Nop()))
		defer srv.Close()

		convey.Convey("Then docs and API routes are both served", func() {
			for _, path := range []string{"/healthz", "/api-docs", "/openapi.yaml", "/leaderboards"} {
				resp, err := http.Get(srv.URL + path)
				convey.So(err, convey.ShouldBeNil)
				_ = resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then the configured default size is used", func() {
			resp, err := http.Post(srv.URL+"/leaderboards", "application/json", nil)
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusCreated)

			var info types.LeaderboardInfo
			convey.So(json.NewDecoder(resp.Body).Decode(&info), convey.ShouldBeNil)
			convey.So(info.Capacity, convey.ShouldEqual, 2)
		})
	})
}

func TestServe(t *testing.T) {
	convey.Convey("Given an in-memory configuration", t, func() {
		cfg := config.New()
		cfg.Addr = freeAddr(t)
		cfg.WorkerCount = 2
		cfg.QueueSize = 16
		base := "http://" + cfg.Addr

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- serve(ctx, cfg, logger.Nop()) }()
		defer cancel()

		convey.So(waitReady(base+"/healthz"), convey.ShouldBeTrue)

		convey.Convey("When scores are posted to a new leaderboard", func() {
			resp, err := http.Post(base+"/leaderboards?size=2", "application/json", nil)
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusCreated)

			for _, body := range []string{
				`{"player_id":"ann","score":10}`,
				`{"player_id":"bob","score":30}`,
				`{"player_id":"cat","score":20}`,
			} {
				resp, err := http.Post(base+"/scores", "application/json", strings.NewReader(body))
				convey.So(err, convey.ShouldBeNil)
				_ = resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			}

			resp, err = http.Get(base + "/leaderboard")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()

			var entries []types.Entry
			convey.So(json.NewDecoder(resp.Body).Decode(&entries), convey.ShouldBeNil)

			convey.Convey("Then the current leaderboard holds the top two", func() {
				convey.So(entries, convey.ShouldHaveLength, 2)
				convey.So(entries[0].PlayerID, convey.ShouldEqual, "bob")
				convey.So(entries[1].PlayerID, convey.ShouldEqual, "cat")
			})
		})

		convey.Convey("When the context is canceled", func() {
			cancel()

			convey.Convey("Then serve shuts down cleanly", func() {
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(5 * time.Second):
					convey.So("serve did not return", convey.ShouldBeEmpty)
				}
			})
		})
	})

	convey.Convey("Given an unknown store driver", t, func() {
		cfg := config.New()
		cfg.Store.Driver = "cassandra"

		err := serve(context.Background(), cfg, logger.Nop())
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestRefreshSystemMetrics(t *testing.T) {
	convey.Convey("Given a short-lived context", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		convey.So(func() { refreshSystemMetrics(ctx, 10*time.Millisecond) }, convey.ShouldNotPanic)
		convey.So(metricsInterval(), convey.ShouldBeGreaterThan, 0)
	})
}

func TestNewMetrics(t *testing.T) {
	convey.Convey("Given metrics settings from config", t, func() {
		prev := metrics.Global()
		convey.Reset(func() { metrics.SetGlobal(prev) })

		cfg := config.New().Metrics
		cfg.Namespace = "arena"
		cfg.Subsystem = "board"
		cfg.RefreshIntervalMS = 250
		cfg.ConstLabels = map[string]string{"region": "eu"}

		m := newMetrics(cfg)

		convey.Convey("Then the manager uses the configured names and interval", func() {
			convey.So(m.Enabled(), convey.ShouldBeTrue)
			convey.So(m.RefreshInterval(), convey.ShouldEqual, 250*time.Millisecond)

			families, err := m.Gatherer().Gather()
			convey.So(err, convey.ShouldBeNil)
			convey.So(families, convey.ShouldNotBeEmpty)
			for _, f := range families {
				convey.So(strings.HasPrefix(f.GetName(), "arena_board_"), convey.ShouldBeTrue)
				labels := map[string]string{}
				for _, l := range f.GetMetric()[0].GetLabel() {
					labels[l.GetName()] = l.GetValue()
				}
				convey.So(labels["region"], convey.ShouldEqual, "eu")
			}
		})

		convey.Convey("Then installing it drives the refresh loop interval", func() {
			metrics.SetGlobal(m)
			convey.So(metricsInterval(), convey.ShouldEqual, 250*time.Millisecond)
		})

		convey.Convey("Then a disabled section yields a disabled manager", func() {
			cfg.Enabled = false
			convey.So(newMetrics(cfg).Enabled(), convey.ShouldBeFalse)
		})
	})
}
