// Package transformer manages generated transformer code bodies keyed
// by (kind, template). Code is generated once per template and reused on
// every subsequent refresh of every metric sharing that template.
package transformer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/leapstack-labs/leapdash/pkg/core"
)

// GenerateFunc produces a code body when no row exists yet. It is
// invoked at most once per in-flight (kind, template) key.
type GenerateFunc func(ctx context.Context) (*core.GenerateResult, error)

// Store wraps the persistence layer with lazy generation. It is an
// explicit dependency-injected object, not ambient global state, so
// tests can substitute an in-memory backing store.
type Store struct {
	store  core.Store
	group  singleflight.Group
	logger *slog.Logger
}

// NewStore creates a transformer store. A nil logger discards output.
func NewStore(store core.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{store: store, logger: logger}
}

// GetOrCreate returns the transformer for (kind, templateID), generating
// and persisting it on first use. Concurrent creators for the same key
// are collapsed in-process via singleflight; at the store level a
// conflicting insert is a no-op against the first writer's row, so two
// racing writers can never cross-overwrite code bodies.
func (s *Store) GetOrCreate(ctx context.Context, kind core.TransformerKind, templateID string, gen GenerateFunc) (*core.Transformer, error) {
	tr, err := s.store.GetTransformer(kind, templateID)
	if err == nil {
		return tr, nil
	}
	if !errors.Is(err, core.ErrTransformerNotFound) {
		return nil, err
	}
	if gen == nil {
		return nil, core.ErrTransformerNotFound
	}

	key := string(kind) + ":" + templateID
	v, err, _ := s.group.Do(key, func() (any, error) {
		// Re-check under the flight lock: another caller may have
		// finished generating while we waited.
		tr, err := s.store.GetTransformer(kind, templateID)
		if err == nil {
			return tr, nil
		}
		if !errors.Is(err, core.ErrTransformerNotFound) {
			return nil, err
		}

		s.logger.Debug("generating transformer",
			slog.String("kind", string(kind)), slog.String("template", templateID))

		result, err := gen(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s transformer: %w", kind, err)
		}

		return s.store.CreateTransformer(&core.Transformer{
			TemplateID:      templateID,
			Kind:            kind,
			Code:            result.Code,
			ValueLabel:      result.ValueLabel,
			DataDescription: result.DataDescription,
			FromHint:        result.FromHint,
		})
	})
	if err != nil {
		return nil, err
	}

	return v.(*core.Transformer), nil
}

// Regenerate deletes the stored row so the next GetOrCreate re-generates
// the code. This is the only supported update path: in-place mutation is
// disallowed so a reader never observes a transformer mid-edit.
func (s *Store) Regenerate(kind core.TransformerKind, templateID string) error {
	s.logger.Debug("regenerating transformer",
		slog.String("kind", string(kind)), slog.String("template", templateID))
	return s.store.DeleteTransformer(kind, templateID)
}

// Exists reports whether a transformer row is present for the key.
func (s *Store) Exists(kind core.TransformerKind, templateID string) (bool, error) {
	_, err := s.store.GetTransformer(kind, templateID)
	if errors.Is(err, core.ErrTransformerNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
