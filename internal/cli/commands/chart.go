package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapdash/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewChartCommand creates the chart command.
func NewChartCommand(resolve ConfigFunc) *cobra.Command {
	var (
		force      bool
		regenerate bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "chart <metric-id>",
		Short: "Show or regenerate a metric's chart configuration",
		Long: `Print the stored chart configuration for a metric as JSON.

With --regenerate, re-run the chart phase of the pipeline first: execute
the chart transformer against the stored data points and persist the
resulting configuration. Data points are left untouched.`,
		Example: `  # Print the stored chart config
  leapdash chart m_7f3a

  # Re-run the chart phase, regenerating the transformer
  leapdash chart m_7f3a --regenerate --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := resolve()
			metricID := args[0]
			logger := newLogger(cfg.Verbose)

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if regenerate {
				orch := newOrchestrator(cfg, store, nil, logger)
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				if err := orch.RegenerateChart(ctx, metricID, pipeline.ChartOptions{Force: force}); err != nil {
					return fmt.Errorf("chart regeneration failed: %w", err)
				}
			}

			chart, err := store.GetChartConfig(metricID)
			if err != nil {
				return err
			}
			if chart == nil {
				return fmt.Errorf("no chart config stored for metric %s", metricID)
			}

			var buf bytes.Buffer
			if err := json.Indent(&buf, chart.Config, "", "  "); err != nil {
				return fmt.Errorf("failed to format chart config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), buf.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "Re-run the chart phase before printing")
	cmd.Flags().BoolVar(&force, "force", false, "Regenerate the chart transformer instead of reusing it")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Abort regeneration after this long")

	return cmd
}
