package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapdash/pkg/core"
)

// SaveChartConfig replaces the metric's chart configuration whole.
func (s *SQLiteStore) SaveChartConfig(metricID string, config []byte) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(
		`INSERT INTO chart_configs (metric_id, config, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (metric_id) DO UPDATE SET
		   config = excluded.config,
		   updated_at = excluded.updated_at`,
		metricID, string(config), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save chart config: %w", err)
	}

	return nil
}

// GetChartConfig retrieves the metric's chart configuration.
// Returns nil without error when none has been rendered yet.
func (s *SQLiteStore) GetChartConfig(metricID string) (*core.ChartConfig, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	cc := &core.ChartConfig{}
	var config string

	err := s.db.QueryRow(
		`SELECT metric_id, config, updated_at FROM chart_configs WHERE metric_id = ?`,
		metricID,
	).Scan(&cc.MetricID, &config, &cc.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chart config: %w", err)
	}

	cc.Config = []byte(config)
	return cc, nil
}
