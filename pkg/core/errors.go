package core

import "errors"

// Sentinel errors shared across packages.
var (
	// ErrAlreadyRunning is returned when a refresh is triggered for a
	// metric whose pipeline is already in progress. Concurrent runs are
	// rejected, never interleaved: two runs racing to upsert or replace
	// the same metric's points would break the snapshot invariant.
	ErrAlreadyRunning = errors.New("pipeline already running for metric")

	// ErrMetricNotFound is returned when no metric exists for an ID.
	ErrMetricNotFound = errors.New("metric not found")

	// ErrTransformerNotFound is returned when no transformer row exists
	// for a (kind, template) pair.
	ErrTransformerNotFound = errors.New("transformer not found")
)
