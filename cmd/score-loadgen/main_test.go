package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v2"

	"github.com/okian/scoreboard/internal/loadgen"
)

func TestFlagsReachConfig(t *testing.T) {
	app := newApp()
	var got *loadgen.Config
	app.Action = func(c *cli.Context) error {
		got = configFrom(c)
		return nil
	}

	err := app.Run([]string{"score-loadgen", "--url", "http://svc:9080", "--players", "5", "--scores", "20", "--size", "3", "--seed", "9", "--async"})
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.Equal(t, "http://svc:9080", got.BaseURL)
		assert.Equal(t, 5, got.Players)
		assert.Equal(t, 20, got.Scores)
		assert.Equal(t, 3, got.Capacity)
		assert.Equal(t, int64(9), got.Seed)
		assert.True(t, got.Async)
		assert.Equal(t, loadgen.DefaultTimeout, got.Timeout)
		assert.NoError(t, got.Validate())
	}
}

func TestInvalidConfigFailsBeforeNetwork(t *testing.T) {
	err := newApp().Run([]string{"score-loadgen", "--url", "http://127.0.0.1:1", "--players", "0"})
	assert.ErrorIs(t, err, loadgen.ErrInvalidConfig)
}
