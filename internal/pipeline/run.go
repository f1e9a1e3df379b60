package pipeline

// run.go - execution of the ordered step sequence for one metric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapdash/internal/sandbox"
	"github.com/leapstack-labs/leapdash/pkg/core"
)

// RefreshOptions controls a full pipeline run.
type RefreshOptions struct {
	// Force regenerates both transformers before running instead of
	// reusing the stored code bodies.
	Force bool

	// Preferences is passed to the chart transform as its second
	// argument (user chart preferences).
	Preferences map[string]any
}

// ChartOptions controls a chart-only regeneration.
type ChartOptions struct {
	// Force regenerates the chart transformer before running.
	Force bool

	Preferences map[string]any
}

// run carries the state of one pipeline execution.
type run struct {
	o       *Orchestrator
	metric  *core.Metric
	tpl     core.Template
	id      string
	claimed string // step name BeginRun already wrote
}

// Refresh executes the full step sequence for a metric. A soft refresh
// (Force false) reuses both transformers; a hard regenerate (Force
// true) forces regeneration before running. Both walk the same steps
// and differ only in which generation steps are skipped.
//
// The call is synchronous: it returns once the run reaches a terminal
// state. A second trigger while a run is active returns
// core.ErrAlreadyRunning without starting anything.
func (o *Orchestrator) Refresh(ctx context.Context, metricID string, opts RefreshOptions) error {
	resume, err := o.StartRefresh(metricID, opts)
	if err != nil {
		return err
	}
	return resume(ctx)
}

// StartRefresh claims the run lock and returns the function that
// executes the rest of the run. The claim is synchronous: a caller
// spawning the run in the background learns about ErrAlreadyRunning or
// an unknown metric before it acknowledges anything. The returned
// function must be called exactly once; it releases the lock.
func (o *Orchestrator) StartRefresh(metricID string, opts RefreshOptions) (func(context.Context) error, error) {
	m, err := o.store.GetMetric(metricID)
	if err != nil {
		return nil, err
	}

	tpl, ok := o.templates[m.TemplateID]
	if !ok {
		return nil, fmt.Errorf("metric %s declares unknown template %q", m.ID, m.TemplateID)
	}

	if err := o.store.BeginRun(m.ID, core.StepFetchingAPIData); err != nil {
		return nil, err
	}
	o.broadcast()

	r := &run{o: o, metric: m, tpl: tpl, id: uuid.New().String(), claimed: core.StepFetchingAPIData}
	o.logger.Info("starting run", "metric", m.ID, "run_id", r.id, "force", opts.Force)

	return func(ctx context.Context) error {
		runErr := r.refresh(ctx, opts)
		r.finish(runErr, runErr == nil)
		return runErr
	}, nil
}

// RegenerateChart re-derives chart configuration from already-stored
// data points. It skips fetch and ingestion entirely and must not alter
// any stored data point.
func (o *Orchestrator) RegenerateChart(ctx context.Context, metricID string, opts ChartOptions) error {
	resume, err := o.StartRegenerateChart(metricID, opts)
	if err != nil {
		return err
	}
	return resume(ctx)
}

// StartRegenerateChart is the chart-only counterpart of StartRefresh.
func (o *Orchestrator) StartRegenerateChart(metricID string, opts ChartOptions) (func(context.Context) error, error) {
	m, err := o.store.GetMetric(metricID)
	if err != nil {
		return nil, err
	}

	tpl, ok := o.templates[m.TemplateID]
	if !ok {
		return nil, fmt.Errorf("metric %s declares unknown template %q", m.ID, m.TemplateID)
	}

	if err := o.store.BeginRun(m.ID, core.StepGeneratingChart); err != nil {
		return nil, err
	}
	o.broadcast()

	r := &run{o: o, metric: m, tpl: tpl, id: uuid.New().String(), claimed: core.StepGeneratingChart}
	o.logger.Info("starting chart-only run", "metric", m.ID, "run_id", r.id, "force", opts.Force)

	return func(ctx context.Context) error {
		points, err := o.store.ListDataPoints(m.ID)
		if err == nil {
			err = r.chartPhase(ctx, points, opts.Force, opts.Preferences)
		}
		r.finish(err, false)
		return err
	}, nil
}

// refresh walks the full step sequence.
func (r *run) refresh(ctx context.Context, opts RefreshOptions) error {
	var payload any
	err := r.step(ctx, core.StepFetchingAPIData, func(ctx context.Context) error {
		result, err := r.o.fetcher.Fetch(ctx, r.tpl.FetchRequest())
		if err != nil {
			return err
		}
		payload = result.Data
		return nil
	})
	if err != nil {
		return err
	}

	ingest, err := r.ensureTransformer(ctx, core.StepGeneratingIngestion, core.KindIngest, payload, opts.Force)
	if err != nil {
		return err
	}

	var points []core.DataPoint
	err = r.step(ctx, core.StepExecutingIngestion, func(ctx context.Context) error {
		out, err := r.o.executor.Execute(ctx, ingest.Code, []any{payload}, r.o.limits)
		if err != nil {
			return err
		}
		pts, err := sandbox.DecodePoints(out)
		if err != nil {
			return err
		}
		for i := range pts {
			pts[i].MetricID = r.metric.ID
		}
		points = pts
		return nil
	})
	if err != nil {
		return err
	}

	err = r.step(ctx, core.StepStoringDataPoints, func(_ context.Context) error {
		switch r.metric.Cadence {
		case core.CadenceSnapshot:
			return r.o.store.ReplaceSnapshot(r.metric.ID, points)
		default:
			return r.o.store.UpsertTimeSeries(r.metric.ID, points)
		}
	})
	if err != nil {
		return err
	}

	return r.chartPhase(ctx, points, opts.Force, opts.Preferences)
}

// chartPhase runs the chart generation/execution/persistence steps,
// shared by full refreshes and chart-only regenerations.
func (r *run) chartPhase(ctx context.Context, points []core.DataPoint, force bool, prefs map[string]any) error {
	chart, err := r.ensureTransformer(ctx, core.StepGeneratingChart, core.KindChart, pointsToJSON(points), force)
	if err != nil {
		return err
	}

	// The caller's preferences map stays untouched; the default label
	// goes into a copy.
	merged := make(map[string]any, len(prefs)+1)
	for k, v := range prefs {
		merged[k] = v
	}
	if _, ok := merged["valueLabel"]; !ok && chart.ValueLabel != "" {
		merged["valueLabel"] = chart.ValueLabel
	}

	var config []byte
	err = r.step(ctx, core.StepExecutingChart, func(ctx context.Context) error {
		out, err := r.o.executor.Execute(ctx, chart.Code, []any{pointsToJSON(points), merged}, r.o.limits)
		if err != nil {
			return err
		}
		obj, err := sandbox.DecodeChartConfig(out)
		if err != nil {
			return err
		}
		config, err = json.Marshal(obj)
		return err
	})
	if err != nil {
		return err
	}

	return r.step(ctx, core.StepStoringChartConfig, func(_ context.Context) error {
		return r.o.store.SaveChartConfig(r.metric.ID, config)
	})
}

// ensureTransformer runs (or skips) a transformer-generation step and
// returns the code body to execute. The step is skipped when a row
// already exists and no regeneration was forced.
func (r *run) ensureTransformer(ctx context.Context, stepName string, kind core.TransformerKind, sample any, force bool) (*core.Transformer, error) {
	exists, err := r.o.transformers.Exists(kind, r.tpl.ID)
	if err != nil {
		return nil, r.fail(stepName, err)
	}

	if exists && !force {
		tr, err := r.o.transformers.GetOrCreate(ctx, kind, r.tpl.ID, nil)
		if err != nil {
			return nil, r.fail(stepName, err)
		}
		r.skip(stepName, "transformer already generated")
		return tr, nil
	}

	if r.o.generator == nil {
		return nil, r.fail(stepName, errors.New("no code generator configured"))
	}

	var tr *core.Transformer
	err = r.step(ctx, stepName, func(ctx context.Context) error {
		if force && exists {
			if err := r.o.transformers.Regenerate(kind, r.tpl.ID); err != nil {
				return err
			}
		}
		var err error
		tr, err = r.o.transformers.GetOrCreate(ctx, kind, r.tpl.ID, func(ctx context.Context) (*core.GenerateResult, error) {
			return r.o.generator.Generate(ctx, core.GenerateRequest{
				Kind:            kind,
				TemplateID:      r.tpl.ID,
				SamplePayload:   sample,
				ExtractionHint:  r.tpl.ExtractionHint,
				ValueLabel:      r.tpl.ValueLabel,
				DataDescription: r.tpl.DataDescription,
			})
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return tr, nil
}

// step advances the metric's status to name, executes fn, and appends
// the completion record before the status moves on. The record is
// written for failures too, so the step log always explains how a run
// ended.
func (r *run) step(ctx context.Context, name string, fn func(context.Context) error) error {
	if name != r.claimed {
		if err := r.o.store.SetStatus(r.metric.ID, name); err != nil {
			return fmt.Errorf("%s: %v", name, err)
		}
		r.o.broadcast()
	}

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	rec := &core.StepRecord{
		MetricID:   r.metric.ID,
		RunID:      r.id,
		Step:       name,
		Status:     core.StepStatusSuccess,
		DurationMS: duration.Milliseconds(),
		StartedAt:  start.UTC(),
	}
	if err != nil {
		rec.Status = core.StepStatusFailed
		rec.Error = err.Error()
	}

	if appendErr := r.o.store.AppendStep(rec); appendErr != nil {
		r.o.logger.Error("failed to append step record", "metric", r.metric.ID, "step", name, "error", appendErr)
		if err == nil {
			err = appendErr
		}
	}
	r.o.broadcast()

	if err != nil {
		r.o.logger.Debug("step failed", "metric", r.metric.ID, "step", name, "error", err)
		return fmt.Errorf("%s: %v", name, err)
	}

	r.o.logger.Debug("step completed", "metric", r.metric.ID, "step", name, "duration_ms", rec.DurationMS)
	return nil
}

// skip records a skipped step without executing anything.
func (r *run) skip(name, reason string) {
	rec := &core.StepRecord{
		MetricID:  r.metric.ID,
		RunID:     r.id,
		Step:      name,
		Status:    core.StepStatusSkipped,
		Error:     reason,
		StartedAt: time.Now().UTC(),
	}
	if err := r.o.store.AppendStep(rec); err != nil {
		r.o.logger.Error("failed to append skip record", "metric", r.metric.ID, "step", name, "error", err)
	}
	r.o.broadcast()
}

// fail records a failed step and returns the wrapped error. Used where
// a step cannot even start.
func (r *run) fail(name string, err error) error {
	rec := &core.StepRecord{
		MetricID:  r.metric.ID,
		RunID:     r.id,
		Step:      name,
		Status:    core.StepStatusFailed,
		Error:     err.Error(),
		StartedAt: time.Now().UTC(),
	}
	if appendErr := r.o.store.AppendStep(rec); appendErr != nil {
		r.o.logger.Error("failed to append step record", "metric", r.metric.ID, "step", name, "error", appendErr)
	}
	r.o.broadcast()
	return fmt.Errorf("%s: %v", name, err)
}

// finish ends the run: status back to null, terminal error recorded,
// fetch timestamp stamped for successful fetch-path runs. Effects of
// previously-successful steps are deliberately left in place - a failed
// chart step does not discard freshly stored data points.
func (r *run) finish(runErr error, touchFetchedAt bool) {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}

	if err := r.o.store.FinishRun(r.metric.ID, msg, touchFetchedAt && runErr == nil); err != nil && !errors.Is(err, core.ErrMetricNotFound) {
		r.o.logger.Error("failed to finish run", "metric", r.metric.ID, "error", err)
	}
	r.o.broadcast()

	if runErr != nil {
		r.o.logger.Info("run failed", "metric", r.metric.ID, "run_id", r.id, "error", msg)
	} else {
		r.o.logger.Info("run completed", "metric", r.metric.ID, "run_id", r.id)
	}
}

// pointsToJSON converts stored points to the JSON shape the chart
// transform receives.
func pointsToJSON(points []core.DataPoint) []any {
	out := make([]any, len(points))
	for i, p := range points {
		obj := map[string]any{
			"timestamp": p.Timestamp.UTC().Format(time.RFC3339),
			"value":     p.Value,
		}
		if p.Dimensions != nil {
			obj["dimensions"] = p.Dimensions
		}
		out[i] = obj
	}
	return out
}
