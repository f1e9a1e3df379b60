package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapdash/pkg/core"
)

// CreateMetric inserts a new metric row.
func (s *SQLiteStore) CreateMetric(m *core.Metric) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if m.ID == "" {
		m.ID = generateID()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	s.logger.Debug("creating metric", slog.String("id", m.ID), slog.String("template", m.TemplateID))

	_, err := s.db.Exec(
		`INSERT INTO metrics (id, name, template_id, cadence, status, last_error, last_fetched_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, NULL, NULL, NULL, ?, ?)`,
		m.ID, m.Name, m.TemplateID, string(m.Cadence), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create metric: %w", err)
	}

	return nil
}

// GetMetric retrieves a metric by ID.
func (s *SQLiteStore) GetMetric(id string) (*core.Metric, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(
		`SELECT id, name, template_id, cadence, status, last_error, last_fetched_at, created_at, updated_at
		 FROM metrics WHERE id = ?`,
		id,
	)

	m, err := scanMetric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrMetricNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metric: %w", err)
	}

	return m, nil
}

// ListMetrics retrieves all metrics ordered by creation time.
func (s *SQLiteStore) ListMetrics() ([]*core.Metric, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, name, template_id, cadence, status, last_error, last_fetched_at, created_at, updated_at
		 FROM metrics ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*core.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}

	return metrics, rows.Err()
}

// DeleteMetric removes a metric. Data points, step records, and chart
// config cascade; transformer code is shared across metrics of the same
// template and is left alone.
func (s *SQLiteStore) DeleteMetric(id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	result, err := s.db.Exec(`DELETE FROM metrics WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete metric: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return core.ErrMetricNotFound
	}

	return nil
}

// BeginRun claims the soft lock for a pipeline run: the metric's status
// is set to the first step name iff no run is active. The single
// conditional write is what makes the run externally visible to pollers
// and what rejects a concurrent second trigger.
func (s *SQLiteStore) BeginRun(metricID, firstStep string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	result, err := s.db.Exec(
		`UPDATE metrics SET status = ?, updated_at = ? WHERE id = ? AND status IS NULL`,
		firstStep, time.Now().UTC(), metricID,
	)
	if err != nil {
		return fmt.Errorf("failed to begin run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		// Either the metric does not exist or a run is in progress.
		if _, err := s.GetMetric(metricID); err != nil {
			return err
		}
		return core.ErrAlreadyRunning
	}

	return nil
}

// SetStatus advances the metric's status to the named step.
func (s *SQLiteStore) SetStatus(metricID, step string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	result, err := s.db.Exec(
		`UPDATE metrics SET status = ?, updated_at = ? WHERE id = ?`,
		step, time.Now().UTC(), metricID,
	)
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return core.ErrMetricNotFound
	}

	return nil
}

// FinishRun ends the run: status returns to null, last_error records the
// terminal outcome (empty means success and clears any previous error),
// and last_fetched_at is stamped when the run fetched fresh data.
func (s *SQLiteStore) FinishRun(metricID, errMsg string, touchFetchedAt bool) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	var result sql.Result
	var err error
	if touchFetchedAt {
		result, err = s.db.Exec(
			`UPDATE metrics SET status = NULL, last_error = ?, last_fetched_at = ?, updated_at = ? WHERE id = ?`,
			errorPtr, now, now, metricID,
		)
	} else {
		result, err = s.db.Exec(
			`UPDATE metrics SET status = NULL, last_error = ?, updated_at = ? WHERE id = ?`,
			errorPtr, now, metricID,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return core.ErrMetricNotFound
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanMetric(row scanner) (*core.Metric, error) {
	m := &core.Metric{}
	var cadence string
	var status, lastError sql.NullString
	var lastFetchedAt sql.NullTime

	err := row.Scan(&m.ID, &m.Name, &m.TemplateID, &cadence, &status, &lastError, &lastFetchedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	m.Cadence = core.Cadence(cadence)
	if status.Valid {
		m.Status = &status.String
	}
	if lastError.Valid {
		m.LastError = &lastError.String
	}
	if lastFetchedAt.Valid {
		t := lastFetchedAt.Time
		m.LastFetchedAt = &t
	}

	return m, nil
}
