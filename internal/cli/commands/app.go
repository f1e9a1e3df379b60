// Package commands implements the LeapDash subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapdash/internal/cli/config"
	"github.com/leapstack-labs/leapdash/internal/fetcher"
	"github.com/leapstack-labs/leapdash/internal/generator"
	"github.com/leapstack-labs/leapdash/internal/pipeline"
	"github.com/leapstack-labs/leapdash/internal/state"
	"github.com/leapstack-labs/leapdash/pkg/core"
)

// ConfigFunc resolves the loaded CLI configuration.
type ConfigFunc func() *config.Config

// newLogger builds the CLI logger. Commands stay quiet unless
// --verbose is set.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore opens and migrates the state database.
func openStore(cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, error) {
	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// newOrchestrator wires the pipeline from the configuration. The
// generator is optional: without an API key the pipeline can still
// re-run metrics whose transformers already exist.
func newOrchestrator(cfg *config.Config, store core.Store, notifier pipeline.Broadcaster, logger *slog.Logger) *pipeline.Orchestrator {
	var gen core.Generator
	if cfg.Generator.APIKey != "" {
		g, err := generator.New(cfg.Generator.APIKey, cfg.Generator.Model, logger)
		if err == nil {
			gen = g
		}
	} else {
		logger.Debug("no generator API key configured, transformer generation disabled")
	}

	return pipeline.New(pipeline.Config{
		Store:     store,
		Fetcher:   fetcher.New(cfg.FetcherConnections(), logger),
		Generator: gen,
		Limits:    cfg.Sandbox.Limits(),
		Templates: cfg.CoreTemplates(),
		Notifier:  notifier,
		Logger:    logger,
	})
}
