package core

import "time"

// Cadence declares how a metric's data points are persisted across runs.
type Cadence string

// Cadence constants.
const (
	// CadenceTimeSeries accumulates points over time, upserted by timestamp.
	CadenceTimeSeries Cadence = "time-series"
	// CadenceSnapshot fully replaces the metric's points on each run.
	CadenceSnapshot Cadence = "snapshot"
)

// Valid reports whether c is a known cadence.
func (c Cadence) Valid() bool {
	return c == CadenceTimeSeries || c == CadenceSnapshot
}

// Pipeline step names, in execution order. A metric's Status holds the
// name of the step in progress, or nil when the pipeline is idle.
const (
	StepFetchingAPIData     = "fetching-api-data"
	StepGeneratingIngestion = "generating-ingestion-transformer"
	StepExecutingIngestion  = "executing-ingestion-transformer"
	StepStoringDataPoints   = "storing-data-points"
	StepGeneratingChart     = "generating-chart-transformer"
	StepExecutingChart      = "executing-chart-transformer"
	StepStoringChartConfig  = "storing-chart-config"
)

// StepOrder is the canonical step sequence for a full refresh.
var StepOrder = []string{
	StepFetchingAPIData,
	StepGeneratingIngestion,
	StepExecutingIngestion,
	StepStoringDataPoints,
	StepGeneratingChart,
	StepExecutingChart,
	StepStoringChartConfig,
}

// Metric represents one tracked quantity.
type Metric struct {
	ID         string
	Name       string
	TemplateID string
	Cadence    Cadence

	// Status is the name of the pipeline step currently in progress,
	// or nil when no run is active. A non-nil Status acts as the soft
	// lock that rejects concurrent refresh triggers.
	Status *string

	// LastError holds the message of the most recent failed run.
	// Cleared on the next successful run.
	LastError *string

	LastFetchedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsProcessing reports whether a pipeline run is active for the metric.
func (m *Metric) IsProcessing() bool {
	return m.Status != nil
}
