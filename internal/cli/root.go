package cli

import (
	"github.com/spf13/cobra"

	"github.com/ujohnny/dkr/internal/logger"
)

// createRootCommand creates the root command with global flags
func createRootCommand() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "dkr",
		Short: "Containerized development environments for local git repositories",
		Long: `dkr builds per-repository, per-branch Docker development environments.
It clones a local repository into an image over SSH, layers incremental
updates onto existing images instead of re-cloning, and starts containers
that work on an isolated branch whose pushes route back to the origin host.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetLevel(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	return rootCmd
}
