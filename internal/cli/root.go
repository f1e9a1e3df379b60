// Package cli provides the command-line interface for LeapDash.
package cli

import (
	"fmt"
	"os"

	"github.com/leapstack-labs/leapdash/internal/cli/commands"
	"github.com/leapstack-labs/leapdash/internal/cli/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leapdash",
		Short: "LeapDash - Metric Dashboard Pipeline",
		Long: `LeapDash ingests metrics from provider APIs into a local dashboard.

Each metric runs through a resumable pipeline: fetch the raw API payload,
generate and execute a sandboxed ingestion transformer, store the data
points, then generate and execute a chart transformer for rendering.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			var err error
			cfg, err = config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			if cfg.Verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", configFile)
				}
			}

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Metric dashboard pipeline built with Go and Starlark
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./leapdash.yaml)")
	rootCmd.PersistentFlags().String("state-path", "", "Path to state database")
	rootCmd.PersistentFlags().Int("port", 0, "HTTP API port")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	resolve := func() *config.Config {
		if cfg != nil {
			return cfg
		}
		return &config.Config{
			StatePath: config.DefaultStatePath,
			Port:      config.DefaultPort,
		}
	}

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewServeCommand(resolve))
	rootCmd.AddCommand(commands.NewRefreshCommand(resolve))
	rootCmd.AddCommand(commands.NewChartCommand(resolve))
	rootCmd.AddCommand(commands.NewStatusCommand(resolve))
	rootCmd.AddCommand(commands.NewMetricCommand(resolve))
	rootCmd.AddCommand(commands.NewTemplatesCommand(resolve))
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for LeapDash.

To load completions:

Bash:
  $ source <(leapdash completion bash)

Zsh:
  $ leapdash completion zsh > "${fpath[1]}/_leapdash"

Fish:
  $ leapdash completion fish | source

PowerShell:
  PS> leapdash completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
	return cmd
}
