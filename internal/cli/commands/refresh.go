package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/leapstack-labs/leapdash/internal/cli/config"
	"github.com/leapstack-labs/leapdash/internal/pipeline"
	"github.com/leapstack-labs/leapdash/pkg/core"
	"github.com/spf13/cobra"
)

// RefreshOptions holds options for the refresh command.
type RefreshOptions struct {
	Force   bool
	Timeout time.Duration
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(resolve ConfigFunc) *cobra.Command {
	opts := &RefreshOptions{}

	cmd := &cobra.Command{
		Use:   "refresh <metric-id>",
		Short: "Run the ingestion pipeline for a metric",
		Long: `Run the full ingestion pipeline for a metric: fetch the provider
payload, execute the ingestion transformer, store the data points, then
regenerate the chart configuration.

Transformers are generated once per template and reused on subsequent
runs. Use --force to regenerate them.`,
		Example: `  # Refresh a metric
  leapdash refresh m_7f3a

  # Refresh and regenerate both transformers
  leapdash refresh m_7f3a --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd, resolve(), args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Regenerate transformers instead of reusing stored ones")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "Abort the run after this long")

	return cmd
}

func runRefresh(cmd *cobra.Command, cfg *config.Config, metricID string, opts *RefreshOptions) error {
	logger := newLogger(cfg.Verbose)

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	orch := newOrchestrator(cfg, store, nil, logger)

	ctx := cmd.Context()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	errCh := make(chan error, 1)
	go func() {
		errCh <- orch.Refresh(ctx, metricID, pipeline.RefreshOptions{Force: opts.Force})
	}()

	out := cmd.OutOrStdout()
	ticker := time.NewTicker(pipeline.DefaultPollInterval)
	defer ticker.Stop()

	printed := 0
	for {
		select {
		case runErr := <-errCh:
			if progress, perr := orch.Progress(metricID); perr == nil {
				printed = printSteps(out, progress.CompletedSteps, printed)
			}
			if runErr != nil {
				return fmt.Errorf("refresh failed: %w", runErr)
			}
			fmt.Fprintf(out, "Completed in %s\n", time.Since(startTime).Round(time.Millisecond))
			return nil
		case <-ticker.C:
			progress, perr := orch.Progress(metricID)
			if perr != nil {
				continue
			}
			printed = printSteps(out, progress.CompletedSteps, printed)
		}
	}
}

// printSteps prints step records beyond the first `printed` and returns
// the new count.
func printSteps(w io.Writer, steps []*core.StepRecord, printed int) int {
	for _, rec := range steps[min(printed, len(steps)):] {
		switch rec.Status {
		case core.StepStatusSkipped:
			fmt.Fprintf(w, "  ~ %s (skipped)\n", rec.Step)
		case core.StepStatusFailed:
			fmt.Fprintf(w, "  ✗ %s: %s\n", rec.Step, rec.Error)
		default:
			fmt.Fprintf(w, "  ✓ %s (%dms)\n", rec.Step, rec.DurationMS)
		}
	}
	if len(steps) > printed {
		return len(steps)
	}
	return printed
}
