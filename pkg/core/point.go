package core

import "time"

// DataPoint is one observation for a metric. (MetricID, Timestamp) is
// unique: it is the join key for both upsert and snapshot-replace
// semantics.
type DataPoint struct {
	MetricID  string
	Timestamp time.Time
	Value     float64

	// Dimensions carries optional free-form structured metadata,
	// e.g. per-category breakdowns. Persisted as JSON.
	Dimensions map[string]any
}

// ChartConfig is the rendered chart configuration for a metric, replaced
// whole on each successful chart step.
type ChartConfig struct {
	MetricID  string
	Config    []byte // JSON document
	UpdatedAt time.Time
}
