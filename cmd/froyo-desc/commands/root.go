package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "froyo-desc",
		Short: "Schema-driven entity descriptions",
		Long: `froyo-desc renders a single entity through a declarative view schema.

Features:
  - View schemas in YAML, JSON or CUE
  - Starlark expressions for computed titles, types and edit rights
  - Inline editing with validation rules
  - OPA/rego field policies
  - HTTP API with live websocket updates backed by SQLite`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRenderCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newServeCommand(version))
	rootCmd.AddCommand(newSeedCommand())

	return rootCmd
}
