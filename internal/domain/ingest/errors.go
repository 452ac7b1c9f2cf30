package ingest

import "errors"

// Sentinel errors shared by the pipeline and store adapters.
var (
	// ErrStorage wraps every failure reported by the durable store.
	ErrStorage = errors.New("durable store failure")
	// ErrRecordExists is returned by an insert-mode upsert for a known player.
	ErrRecordExists = errors.New("score record already exists")
	// ErrRecordMissing is returned by an update-mode upsert for an unknown player.
	ErrRecordMissing = errors.New("score record does not exist")
	// ErrMissingDependency is returned when a pipeline is built without a store or broadcaster.
	ErrMissingDependency = errors.New("ingest pipeline dependency missing")
)
