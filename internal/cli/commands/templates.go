package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTemplatesCommand creates the templates command.
func NewTemplatesCommand(resolve ConfigFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List configured metric templates",
		Long: `List the metric templates declared in the configuration file.

A template binds a provider connection to an endpoint and describes the
shape of the returned data, which drives transformer generation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := resolve()
			out := cmd.OutOrStdout()

			if len(cfg.Templates) == 0 {
				fmt.Fprintln(out, "No templates configured")
				return nil
			}

			for _, t := range cfg.Templates {
				connection := t.Connection
				if connection == "" {
					connection = t.Provider
				}
				fmt.Fprintf(out, "%-24s %s %s (connection: %s)\n", t.ID, methodOrGet(t.Method), t.Endpoint, connection)
				if t.DataDescription != "" {
					fmt.Fprintf(out, "    %s\n", t.DataDescription)
				}
			}
			return nil
		},
	}
}

func methodOrGet(method string) string {
	if method == "" {
		return "GET"
	}
	return method
}
