package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/leapstack-labs/leapdash/pkg/core"
)

// Polling defaults for WaitUntilIdle.
const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultPollTimeout  = 3 * time.Minute
)

// ErrPollTimeout is returned when a pipeline does not reach a terminal
// state within the polling budget. It is distinct from a pipeline-
// reported error: it guards against an orchestrator crash leaving the
// metric's status stuck non-null.
var ErrPollTimeout = errors.New("timed out waiting for pipeline to finish")

// Progress reconstructs the externally visible pipeline state for a
// metric from its row and the step log of its latest run. It is a pure
// read with no side effects and is safe to call concurrently with an
// in-progress run - each step completion is a single atomic append.
func (o *Orchestrator) Progress(metricID string) (*core.Progress, error) {
	m, err := o.store.GetMetric(metricID)
	if err != nil {
		return nil, err
	}

	p := &core.Progress{
		IsProcessing:   m.IsProcessing(),
		CompletedSteps: []*core.StepRecord{},
	}
	if m.Status != nil {
		p.CurrentStep = *m.Status
	}
	if m.LastError != nil {
		p.Error = *m.LastError
	}

	runID, err := o.store.GetLatestRunID(metricID)
	if err != nil {
		return nil, err
	}
	if runID != "" {
		steps, err := o.store.GetSteps(metricID, runID)
		if err != nil {
			return nil, err
		}
		p.CompletedSteps = steps
	}

	return p, nil
}

// WaitUntilIdle polls Progress on a fixed interval until the pipeline
// reaches a terminal state, the context is cancelled, or the timeout
// expires. On timeout the last observed progress is returned together
// with ErrPollTimeout so the caller can distinguish "gave up" from a
// pipeline-reported failure.
func (o *Orchestrator) WaitUntilIdle(ctx context.Context, metricID string, interval, timeout time.Duration) (*core.Progress, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *core.Progress
	for {
		p, err := o.Progress(metricID)
		if err != nil {
			return last, err
		}
		last = p
		if !p.IsProcessing {
			return p, nil
		}
		if time.Now().After(deadline) {
			return last, ErrPollTimeout
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
