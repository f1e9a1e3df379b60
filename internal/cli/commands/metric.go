package commands

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/leapdash/pkg/core"
	"github.com/spf13/cobra"
)

// NewMetricCommand creates the metric command group.
func NewMetricCommand(resolve ConfigFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metric",
		Short: "Manage metrics",
		Long:  `Create, list, inspect, and delete metrics.`,
	}

	cmd.AddCommand(newMetricListCommand(resolve))
	cmd.AddCommand(newMetricCreateCommand(resolve))
	cmd.AddCommand(newMetricDeleteCommand(resolve))
	cmd.AddCommand(newMetricPointsCommand(resolve))

	return cmd
}

func newMetricListCommand(resolve ConfigFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := resolve()
			store, err := openStore(cfg, newLogger(cfg.Verbose))
			if err != nil {
				return err
			}
			defer store.Close()

			metrics, err := store.ListMetrics()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(metrics) == 0 {
				fmt.Fprintln(out, "No metrics defined")
				return nil
			}
			for _, m := range metrics {
				state := "idle"
				switch {
				case m.IsProcessing():
					state = "processing: " + *m.Status
				case m.LastError != nil:
					state = "failed"
				case m.LastFetchedAt == nil:
					state = "never run"
				}
				fmt.Fprintf(out, "%-12s %-30s %-12s %-10s %s\n", m.ID, m.Name, m.TemplateID, m.Cadence, state)
			}
			return nil
		},
	}
}

func newMetricCreateCommand(resolve ConfigFunc) *cobra.Command {
	var (
		name       string
		templateID string
		cadence    string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a metric",
		Example: `  # Track daily active users as an accumulating series
  leapdash metric create --name "Daily Active Users" --template plausible-visitors --cadence time-series

  # Track current open issues as a replace-on-refresh snapshot
  leapdash metric create --name "Open Issues" --template github-issues --cadence snapshot`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := resolve()

			c := core.Cadence(cadence)
			if !c.Valid() {
				return fmt.Errorf("cadence must be %q or %q", core.CadenceTimeSeries, core.CadenceSnapshot)
			}
			if _, ok := cfg.CoreTemplates()[templateID]; !ok {
				return fmt.Errorf("unknown template %q (see 'leapdash templates')", templateID)
			}

			store, err := openStore(cfg, newLogger(cfg.Verbose))
			if err != nil {
				return err
			}
			defer store.Close()

			m := &core.Metric{Name: name, TemplateID: templateID, Cadence: c}
			if err := store.CreateMetric(m); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created metric %s\n", m.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name for the metric")
	cmd.Flags().StringVar(&templateID, "template", "", "Template ID declaring the provider endpoint")
	cmd.Flags().StringVar(&cadence, "cadence", string(core.CadenceTimeSeries), "Persistence cadence (time-series|snapshot)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("template")

	return cmd
}

func newMetricDeleteCommand(resolve ConfigFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <metric-id>",
		Short: "Delete a metric and its data points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := resolve()
			store, err := openStore(cfg, newLogger(cfg.Verbose))
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteMetric(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted metric %s\n", args[0])
			return nil
		},
	}
}

func newMetricPointsCommand(resolve ConfigFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "points <metric-id>",
		Short: "Print a metric's stored data points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := resolve()
			store, err := openStore(cfg, newLogger(cfg.Verbose))
			if err != nil {
				return err
			}
			defer store.Close()

			points, err := store.ListDataPoints(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(points) == 0 {
				fmt.Fprintln(out, "No data points stored")
				return nil
			}
			for _, p := range points {
				fmt.Fprintf(out, "%s  %g\n", p.Timestamp.Format(time.RFC3339), p.Value)
			}
			fmt.Fprintf(out, "%d points\n", len(points))
			return nil
		},
	}
}
