// Package pipeline drives a metric through the ordered ingestion steps:
// fetch, transformer generation, sandboxed transformation, data-point
// persistence, and chart rendering. Step-level progress and terminal
// error state are persisted so a polling client can observe a run
// mid-flight.
package pipeline

import (
	"log/slog"

	"github.com/leapstack-labs/leapdash/internal/sandbox"
	"github.com/leapstack-labs/leapdash/internal/transformer"
	"github.com/leapstack-labs/leapdash/pkg/core"
)

// Broadcaster receives a ping after every persisted progress change so
// interested listeners can re-query immediately instead of waiting for
// the next poll tick.
type Broadcaster interface {
	Broadcast()
}

// Orchestrator executes pipeline runs. Runs for different metrics are
// fully independent; within one metric at most one run is in progress,
// enforced by the store's conditional status claim.
type Orchestrator struct {
	store        core.Store
	transformers *transformer.Store
	fetcher      core.Fetcher
	generator    core.Generator
	executor     *sandbox.Executor
	limits       sandbox.Limits
	templates    map[string]core.Template
	notifier     Broadcaster
	logger       *slog.Logger
}

// Config holds orchestrator dependencies.
type Config struct {
	Store        core.Store
	Transformers *transformer.Store
	Fetcher      core.Fetcher
	Generator    core.Generator
	Executor     *sandbox.Executor
	// Limits bounds each sandbox invocation. Zero values fall back to
	// the sandbox defaults.
	Limits sandbox.Limits
	// Templates maps template ID to its endpoint/hint declaration.
	Templates map[string]core.Template
	// Notifier is optional; nil disables broadcasts.
	Notifier Broadcaster
	// Logger is the structured logger (optional, discards if nil).
	Logger *slog.Logger
}

// New creates a new orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	transformers := cfg.Transformers
	if transformers == nil {
		transformers = transformer.NewStore(cfg.Store, logger)
	}

	executor := cfg.Executor
	if executor == nil {
		executor = sandbox.New(logger)
	}

	templates := cfg.Templates
	if templates == nil {
		templates = make(map[string]core.Template)
	}

	return &Orchestrator{
		store:        cfg.Store,
		transformers: transformers,
		fetcher:      cfg.Fetcher,
		generator:    cfg.Generator,
		executor:     executor,
		limits:       cfg.Limits,
		templates:    templates,
		notifier:     cfg.Notifier,
		logger:       logger,
	}
}

// Template returns the declared template for an ID.
func (o *Orchestrator) Template(id string) (core.Template, bool) {
	tpl, ok := o.templates[id]
	return tpl, ok
}

func (o *Orchestrator) broadcast() {
	if o.notifier != nil {
		o.notifier.Broadcast()
	}
}
