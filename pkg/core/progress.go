package core

import "time"

// StepStatus represents the outcome of a single pipeline step.
type StepStatus string

// Step status constants.
const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// StepRecord is one entry in the append-only step log. Each step writes
// its completion record before the metric's status advances, giving the
// progress query a monotonically growing log rather than a single opaque
// "processing" flag.
type StepRecord struct {
	ID         string
	MetricID   string
	RunID      string
	Step       string
	Status     StepStatus
	Error      string
	DurationMS int64
	StartedAt  time.Time
}

// Progress is the externally visible state of a metric's pipeline,
// reconstructed from the metric row and the step log of its latest run.
type Progress struct {
	IsProcessing   bool          `json:"isProcessing"`
	CurrentStep    string        `json:"currentStep,omitempty"`
	CompletedSteps []*StepRecord `json:"completedSteps"`
	Error          string        `json:"error,omitempty"`
}
