package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/okian/scoreboard/internal/loadgen"
	"github.com/okian/scoreboard/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Stderr.WriteString("score-loadgen: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "score-loadgen",
		Usage: "Submit generated scores to a scoreboard service and verify the leaderboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: loadgen.DefaultBaseURL, Usage: "Base URL of the service", EnvVars: []string{"SCOREBOARD_URL"}},
			&cli.IntFlag{Name: "players", Value: loadgen.DefaultPlayers, Usage: "Number of distinct players"},
			&cli.IntFlag{Name: "scores", Value: loadgen.DefaultScores, Usage: "Number of scores to submit"},
			&cli.IntFlag{Name: "size", Value: loadgen.DefaultCapacity, Usage: "Capacity of the leaderboard created for the run"},
			&cli.Int64Flag{Name: "max-score", Value: loadgen.DefaultMaxScore, Usage: "Exclusive upper bound for generated scores"},
			&cli.IntFlag{Name: "workers", Value: runtime.NumCPU() * 2, Usage: "Concurrent submitters"},
			&cli.Int64Flag{Name: "seed", Usage: "Generation seed (0 picks one from the clock)"},
			&cli.BoolFlag{Name: "async", Usage: "Submit through the queued endpoint"},
			&cli.DurationFlag{Name: "timeout", Value: loadgen.DefaultTimeout, Usage: "Per-request timeout"},
			&cli.DurationFlag{Name: "settle", Value: loadgen.DefaultSettleTimeout, Usage: "How long async runs wait for the queue to drain"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Enable debug logging"},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	level := "info"
	if c.Bool("verbose") {
		level = "debug"
	}
	if err := logger.Init(logger.WithLevel(level)); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	_, err := loadgen.Run(ctx, configFrom(c), logger.Named("loadgen"))
	return err
}

func configFrom(c *cli.Context) *loadgen.Config {
	return &loadgen.Config{
		BaseURL:       c.String("url"),
		Players:       c.Int("players"),
		Scores:        c.Int("scores"),
		Capacity:      c.Int("size"),
		MaxScore:      c.Int64("max-score"),
		Workers:       c.Int("workers"),
		Seed:          c.Int64("seed"),
		Async:         c.Bool("async"),
		Timeout:       c.Duration("timeout"),
		SettleTimeout: c.Duration("settle"),
		Verbose:       c.Bool("verbose"),
	}
}
