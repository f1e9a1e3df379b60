// Package api exposes the status and trigger surface of the pipeline
// over HTTP: metric CRUD, refresh/chart triggers, and the progress
// polling endpoint consumed by dashboard clients.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapdash/internal/notifier"
	"github.com/leapstack-labs/leapdash/internal/pipeline"
	"github.com/leapstack-labs/leapdash/pkg/core"
)

// Server is the HTTP API server.
type Server struct {
	store        core.Store
	orchestrator *pipeline.Orchestrator
	port         int
	logger       *slog.Logger
	notifier     *notifier.Notifier

	// wg tracks pipeline runs started by trigger handlers so Serve can
	// drain them on shutdown.
	wg sync.WaitGroup
}

// Config holds configuration for the API server.
type Config struct {
	Store        core.Store
	Orchestrator *pipeline.Orchestrator
	Port         int
	Logger       *slog.Logger
	Notifier     *notifier.Notifier
}

// NewServer creates a new API server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	n := cfg.Notifier
	if n == nil {
		n = notifier.New()
	}
	return &Server{
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		port:         cfg.Port,
		logger:       logger,
		notifier:     n,
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
	)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/metrics", func(r chi.Router) {
		r.Get("/", s.handleListMetrics)
		r.Post("/", s.handleCreateMetric)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetMetric)
			r.Delete("/", s.handleDeleteMetric)
			r.Get("/progress", s.handleProgress)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/chart", s.handleChartRegenerate)
			r.Get("/chart", s.handleGetChart)
			r.Get("/points", s.handleListPoints)
		})
	})

	return r
}

// Serve starts the API server and blocks until the context is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting API server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down API server...")
		err := srv.Shutdown(shutdownCtx)

		// Let in-flight pipeline runs reach a terminal state; their
		// step effects are durable either way.
		s.wg.Wait()
		return err
	})

	return eg.Wait()
}
