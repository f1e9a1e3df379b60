package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leapdash/internal/pipeline"
	"github.com/leapstack-labs/leapdash/pkg/core"
)

// runTimeout bounds a background pipeline run started by a trigger
// handler. Generous: it covers fetch, generation, and sandbox calls.
const runTimeout = 5 * time.Minute

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// metricJSON is the wire shape of a metric.
type metricJSON struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	TemplateID    string     `json:"templateId"`
	Cadence       string     `json:"cadenceType"`
	Status        *string    `json:"status"`
	LastError     *string    `json:"lastError"`
	LastFetchedAt *time.Time `json:"lastFetchedAt"`
}

func toMetricJSON(m *core.Metric) metricJSON {
	return metricJSON{
		ID:            m.ID,
		Name:          m.Name,
		TemplateID:    m.TemplateID,
		Cadence:       string(m.Cadence),
		Status:        m.Status,
		LastError:     m.LastError,
		LastFetchedAt: m.LastFetchedAt,
	}
}

func (s *Server) handleListMetrics(w http.ResponseWriter, _ *http.Request) {
	metrics, err := s.store.ListMetrics()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]metricJSON, len(metrics))
	for i, m := range metrics {
		out[i] = toMetricJSON(m)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateMetric(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID         string `json:"id"` // optional client-side temporary ID
		Name       string `json:"name"`
		TemplateID string `json:"templateId"`
		Cadence    string `json:"cadenceType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cadence := core.Cadence(body.Cadence)
	if !cadence.Valid() {
		writeErrorMsg(w, http.StatusBadRequest, "cadenceType must be time-series or snapshot")
		return
	}
	if _, ok := s.orchestrator.Template(body.TemplateID); !ok {
		writeErrorMsg(w, http.StatusBadRequest, "unknown template "+body.TemplateID)
		return
	}

	m := &core.Metric{
		ID:         body.ID,
		Name:       body.Name,
		TemplateID: body.TemplateID,
		Cadence:    cadence,
	}
	if err := s.store.CreateMetric(m); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMetricJSON(m))
}

func (s *Server) handleGetMetric(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMetric(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMetricJSON(m))
}

func (s *Server) handleDeleteMetric(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteMetric(chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// maxProgressWait caps how long a progress request may long-poll.
const maxProgressWait = 30 * time.Second

// handleProgress reports the latest run's progress. With ?wait= the
// request long-polls: it holds until a pipeline progress ping, the wait
// elapses, or the client goes away, then reports the current state.
// Plain polling without the parameter remains the contract of record.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if waitArg := r.URL.Query().Get("wait"); waitArg != "" {
		wait, err := time.ParseDuration(waitArg)
		if err != nil || wait <= 0 {
			writeErrorMsg(w, http.StatusBadRequest, "wait must be a positive duration")
			return
		}
		if wait > maxProgressWait {
			wait = maxProgressWait
		}

		ch := s.notifier.Subscribe()
		defer s.notifier.Unsubscribe(ch)

		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ch:
		case <-timer.C:
		case <-r.Context().Done():
		}
	}

	p, err := s.orchestrator.Progress(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleRefresh starts a pipeline run in the background and returns
// immediately; the client polls the progress endpoint. The run lock is
// claimed before the 202 goes out, so an accepted trigger has really
// started and a concurrent one is rejected with 409, never interleaved.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Force bool `json:"force"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body) // empty body means soft refresh
	}

	metricID := chi.URLParam(r, "id")
	resume, err := s.orchestrator.StartRefresh(metricID, pipeline.RefreshOptions{Force: body.Force})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		if err := resume(ctx); err != nil {
			s.logger.Debug("refresh failed", "metric", metricID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleChartRegenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Force       bool           `json:"force"`
		Preferences map[string]any `json:"preferences"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	metricID := chi.URLParam(r, "id")
	resume, err := s.orchestrator.StartRegenerateChart(metricID, pipeline.ChartOptions{
		Force:       body.Force,
		Preferences: body.Preferences,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		if err := resume(ctx); err != nil {
			s.logger.Debug("chart regeneration failed", "metric", metricID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleGetChart(w http.ResponseWriter, r *http.Request) {
	cc, err := s.store.GetChartConfig(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if cc == nil {
		writeErrorMsg(w, http.StatusNotFound, "no chart config rendered yet")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(cc.Config)
}

func (s *Server) handleListPoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.store.ListDataPoints(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	type pointJSON struct {
		Timestamp  time.Time      `json:"timestamp"`
		Value      float64        `json:"value"`
		Dimensions map[string]any `json:"dimensions,omitempty"`
	}
	out := make([]pointJSON, len(points))
	for i, p := range points {
		out[i] = pointJSON{Timestamp: p.Timestamp, Value: p.Value, Dimensions: p.Dimensions}
	}
	writeJSON(w, http.StatusOK, out)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeErrorMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrMetricNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, core.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
