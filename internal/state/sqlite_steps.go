package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapdash/pkg/core"
)

// AppendStep records a completed step. Each write is a single atomic
// append, so the progress query can read the log concurrently with an
// in-progress run.
func (s *SQLiteStore) AppendStep(rec *core.StepRecord) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if rec.ID == "" {
		rec.ID = generateID()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO step_records (id, metric_id, run_id, step, status, error, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MetricID, rec.RunID, rec.Step, string(rec.Status), rec.Error, rec.DurationMS, rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append step record: %w", err)
	}

	return nil
}

// GetSteps retrieves the ordered step log for one run of a metric.
func (s *SQLiteStore) GetSteps(metricID, runID string) ([]*core.StepRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, metric_id, run_id, step, status, error, duration_ms, started_at
		 FROM step_records WHERE metric_id = ? AND run_id = ? ORDER BY started_at, rowid`,
		metricID, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get step records: %w", err)
	}
	defer rows.Close()

	var records []*core.StepRecord
	for rows.Next() {
		rec := &core.StepRecord{}
		var status string

		err := rows.Scan(&rec.ID, &rec.MetricID, &rec.RunID, &rec.Step, &status, &rec.Error, &rec.DurationMS, &rec.StartedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step record: %w", err)
		}

		rec.Status = core.StepStatus(status)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetLatestRunID retrieves the run ID of the metric's most recent run.
// Returns empty string without error when the metric has never run.
func (s *SQLiteStore) GetLatestRunID(metricID string) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not opened")
	}

	var runID string
	err := s.db.QueryRow(
		`SELECT run_id FROM step_records WHERE metric_id = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		metricID,
	).Scan(&runID)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest run id: %w", err)
	}

	return runID, nil
}

// ListRunIDs retrieves the metric's most recent run IDs, newest first.
func (s *SQLiteStore) ListRunIDs(metricID string, limit int) ([]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT run_id FROM step_records WHERE metric_id = ?
		 GROUP BY run_id ORDER BY MAX(rowid) DESC LIMIT ?`,
		metricID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list run ids: %w", err)
	}
	defer rows.Close()

	var runIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		runIDs = append(runIDs, id)
	}

	return runIDs, rows.Err()
}
