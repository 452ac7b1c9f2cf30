package model

import "errors"

// MaxPlayerIDLength matches the width of the player_id column in SQL stores.
const MaxPlayerIDLength = 191

// ErrInvalidRecord is returned for records that must not enter the pipeline.
var ErrInvalidRecord = errors.New("invalid score record")
