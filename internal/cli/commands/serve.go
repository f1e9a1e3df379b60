package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/leapdash/internal/api"
	"github.com/leapstack-labs/leapdash/internal/notifier"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand(resolve ConfigFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the LeapDash HTTP API server.

The server exposes metric CRUD, refresh triggers, progress polling, and
chart configuration endpoints. Refresh runs execute in the background;
poll GET /api/metrics/{id}/progress to follow them.`,
		Example: `  # Serve on the configured port (default 8090)
  leapdash serve

  # Serve on a specific port
  leapdash serve --port 9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := resolve()
			logger := newLogger(cfg.Verbose)

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			n := notifier.New()
			orch := newOrchestrator(cfg, store, n, logger)

			srv := api.NewServer(api.Config{
				Store:        store,
				Orchestrator: orch,
				Port:         cfg.Port,
				Logger:       logger,
				Notifier:     n,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "LeapDash listening on http://localhost:%d\n", cfg.Port)
			return srv.Serve(ctx)
		},
	}

	return cmd
}
