package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapdash/pkg/core"
)

// GetTransformer retrieves a transformer by (kind, template) key.
func (s *SQLiteStore) GetTransformer(kind core.TransformerKind, templateID string) (*core.Transformer, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	tr := &core.Transformer{}
	var kindStr string
	var fromHint int

	err := s.db.QueryRow(
		`SELECT template_id, kind, code, value_label, data_description, from_hint, created_at
		 FROM transformers WHERE template_id = ? AND kind = ?`,
		templateID, string(kind),
	).Scan(&tr.TemplateID, &kindStr, &tr.Code, &tr.ValueLabel, &tr.DataDescription, &fromHint, &tr.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrTransformerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transformer: %w", err)
	}

	tr.Kind = core.TransformerKind(kindStr)
	tr.FromHint = fromHint != 0

	return tr, nil
}

// CreateTransformer inserts a transformer row. If a row already exists
// for the same (kind, template) key the insert is a no-op and the
// existing row is returned: two concurrent creators can never silently
// overwrite one another's code bodies.
func (s *SQLiteStore) CreateTransformer(tr *core.Transformer) (*core.Transformer, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	tr.CreatedAt = time.Now().UTC()
	fromHint := 0
	if tr.FromHint {
		fromHint = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO transformers (template_id, kind, code, value_label, data_description, from_hint, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (template_id, kind) DO NOTHING`,
		tr.TemplateID, string(tr.Kind), tr.Code, tr.ValueLabel, tr.DataDescription, fromHint, tr.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transformer: %w", err)
	}

	// Re-read so the caller always sees the winning row.
	return s.GetTransformer(tr.Kind, tr.TemplateID)
}

// DeleteTransformer removes a transformer row. This is the only
// supported "update" path: regeneration deletes and recreates the row
// whole, so a concurrent reader never observes code mid-edit.
func (s *SQLiteStore) DeleteTransformer(kind core.TransformerKind, templateID string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(
		`DELETE FROM transformers WHERE template_id = ? AND kind = ?`,
		templateID, string(kind),
	)
	if err != nil {
		return fmt.Errorf("failed to delete transformer: %w", err)
	}

	return nil
}
