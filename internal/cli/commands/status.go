package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/leapstack-labs/leapdash/internal/cli/config"
	"github.com/leapstack-labs/leapdash/internal/pipeline"
	"github.com/leapstack-labs/leapdash/pkg/core"
	"github.com/spf13/cobra"
)

// StatusOptions holds options for the status command.
type StatusOptions struct {
	JSONOutput bool
	History    int
}

// NewStatusCommand creates the status command.
func NewStatusCommand(resolve ConfigFunc) *cobra.Command {
	opts := &StatusOptions{}

	cmd := &cobra.Command{
		Use:   "status <metric-id>",
		Short: "Show pipeline progress for a metric",
		Long: `Show the pipeline state of a metric: whether a run is in progress,
the current step, and the completed steps of the latest run.

Use --history to list earlier runs from the step log.`,
		Example: `  # Show latest run progress
  leapdash status m_7f3a

  # Show progress as JSON
  leapdash status m_7f3a --json

  # Show the last 5 runs
  leapdash status m_7f3a --history 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, resolve(), args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&opts.History, "history", 0, "Show step logs for the last N runs")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *config.Config, metricID string, opts *StatusOptions) error {
	logger := newLogger(cfg.Verbose)

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()

	if opts.History > 0 {
		return printHistory(out, store, metricID, opts.History, opts.JSONOutput)
	}

	orch := pipeline.New(pipeline.Config{Store: store, Logger: logger})
	progress, err := orch.Progress(metricID)
	if err != nil {
		return err
	}

	if opts.JSONOutput {
		data, err := json.MarshalIndent(progress, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	metric, err := store.GetMetric(metricID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Metric: %s (%s, %s)\n", metric.Name, metric.ID, metric.Cadence)
	if progress.IsProcessing {
		fmt.Fprintf(out, "Status: processing (%s)\n", progress.CurrentStep)
	} else if progress.Error != "" {
		fmt.Fprintf(out, "Status: failed\nError:  %s\n", progress.Error)
	} else if metric.LastFetchedAt != nil {
		fmt.Fprintf(out, "Status: idle (last fetched %s)\n", metric.LastFetchedAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Fprintln(out, "Status: never run")
	}

	if len(progress.CompletedSteps) > 0 {
		fmt.Fprintln(out, "Steps:")
		printSteps(out, progress.CompletedSteps, 0)
	}

	return nil
}

func printHistory(out io.Writer, store core.Store, metricID string, limit int, jsonOutput bool) error {
	runIDs, err := store.ListRunIDs(metricID, limit)
	if err != nil {
		return err
	}
	if len(runIDs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	if jsonOutput {
		history := make(map[string][]*core.StepRecord, len(runIDs))
		for _, runID := range runIDs {
			steps, err := store.GetSteps(metricID, runID)
			if err != nil {
				return err
			}
			history[runID] = steps
		}
		data, err := json.MarshalIndent(history, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	for _, runID := range runIDs {
		steps, err := store.GetSteps(metricID, runID)
		if err != nil {
			return err
		}
		started := ""
		if len(steps) > 0 {
			started = steps[0].StartedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(out, "Run %s  %s\n", runID, started)
		printSteps(out, steps, 0)
	}

	return nil
}
