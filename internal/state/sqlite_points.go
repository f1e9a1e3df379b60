package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapdash/pkg/core"
)

// UpsertTimeSeries inserts or overwrites points keyed by (metric, ts)
// inside one transaction. Duplicate timestamps within the batch resolve
// to the last point in the batch; replaying an identical batch is a
// no-op on the resulting rows.
func (s *SQLiteStore) UpsertTimeSeries(metricID string, points []core.DataPoint) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertPoints(tx, metricID, points); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("upserted time series", slog.String("metric", metricID), slog.Int("points", len(points)))
	return nil
}

// ReplaceSnapshot atomically deletes all existing points for the metric
// and inserts the fresh set. A reader never observes an empty metric
// mid-replace nor a mix of two snapshot generations: if the insert half
// fails the transaction rolls back and the old rows remain intact.
func (s *SQLiteStore) ReplaceSnapshot(metricID string, points []core.DataPoint) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM data_points WHERE metric_id = ?`, metricID); err != nil {
		return fmt.Errorf("failed to delete prior snapshot: %w", err)
	}

	if err := insertPoints(tx, metricID, points); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("replaced snapshot", slog.String("metric", metricID), slog.Int("points", len(points)))
	return nil
}

// insertPoints upserts points within tx.
func insertPoints(tx *sql.Tx, metricID string, points []core.DataPoint) error {
	stmt, err := tx.Prepare(
		`INSERT INTO data_points (metric_id, ts, value, dimensions)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (metric_id, ts) DO UPDATE SET
		   value = excluded.value,
		   dimensions = excluded.dimensions`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, p := range points {
		var dims *string
		if p.Dimensions != nil {
			raw, err := json.Marshal(p.Dimensions)
			if err != nil {
				return fmt.Errorf("failed to encode dimensions for point %d: %w", i, err)
			}
			str := string(raw)
			dims = &str
		}

		if _, err := stmt.Exec(metricID, p.Timestamp.UTC(), p.Value, dims); err != nil {
			return fmt.Errorf("failed to insert point %d: %w", i, err)
		}
	}

	return nil
}

// ListDataPoints retrieves all points for a metric ordered by timestamp.
func (s *SQLiteStore) ListDataPoints(metricID string) ([]core.DataPoint, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT metric_id, ts, value, dimensions FROM data_points WHERE metric_id = ? ORDER BY ts`,
		metricID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list data points: %w", err)
	}
	defer rows.Close()

	var points []core.DataPoint
	for rows.Next() {
		var p core.DataPoint
		var dims sql.NullString

		if err := rows.Scan(&p.MetricID, &p.Timestamp, &p.Value, &dims); err != nil {
			return nil, fmt.Errorf("failed to scan data point: %w", err)
		}

		if dims.Valid {
			if err := json.Unmarshal([]byte(dims.String), &p.Dimensions); err != nil {
				return nil, fmt.Errorf("failed to decode dimensions: %w", err)
			}
		}
		p.Timestamp = p.Timestamp.UTC()
		points = append(points, p)
	}

	return points, rows.Err()
}
