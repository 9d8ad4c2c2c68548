package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "projectsetup",
	Short: "Scaffold a project from a shared task configuration",
	Long: `projectsetup synchronises a configuration repository, asks which of its
tasks to apply, and runs the units of the chosen tasks through the
beforeAll, run and afterAll phases.

Running 'projectsetup' without a subcommand is equivalent to 'projectsetup run'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: run the 'run' command
		return runCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)

	addRunFlags(rootCmd)

	// Global flags
	rootCmd.PersistentFlags().StringP("dir", "d", "", "Configuration directory (skips repository checkout)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Diagnostic log level (debug, info, warn, error)")
}

// Execute runs the root command until ctx is cancelled
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
