package main

import (
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// The logger may not be initialized when config loading fails.
		os.Stderr.WriteString("scoreboard: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "scoreboard",
		Usage: "Serve bounded top-N leaderboards over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file (falls back to SCOREBOARD_CONFIG)",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Override the HTTP listen address",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the log level (debug, info, warn, error)",
			},
		},
		Action: run,
	}
}
