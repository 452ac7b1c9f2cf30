package kafka

import "errors"

var (
	// ErrInvalidConfig is returned for unusable consumer settings.
	ErrInvalidConfig = errors.New("invalid kafka config")
	// ErrDecode marks a message whose value is not a score record.
	ErrDecode = errors.New("cannot decode score message")
	// ErrIngest marks a decoded record the pipeline refused.
	ErrIngest = errors.New("score ingestion failed")
	// ErrDLQNotConfigured is returned when a dead letter is needed but no topic is set.
	ErrDLQNotConfigured = errors.New("dlq topic not configured")
)
