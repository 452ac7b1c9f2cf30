package model

// Status is the terminal state of one ingestion.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// The only two messages that leave the ingestion pipeline.
const (
	MessageIngested = "User score ingested successfully"
	MessageFailed   = "User score insertion failed"
)

// Outcome is the single result of ingesting one ScoreRecord.
type Outcome struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Success returns the success outcome.
func Success() Outcome { return Outcome{Status: StatusSuccess, Message: MessageIngested} }

// Failure returns the failure outcome.
func Failure() Outcome { return Outcome{Status: StatusFailure, Message: MessageFailed} }

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool { return o.Status == StatusSuccess }
