// Package commands implements the repodigestd daemon CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// configPath is the path to the YAML config file.
	configPath string

	// dbPath overrides the database path from the config.
	dbPath string
)

// rootCmd is the base command for the daemon.
var rootCmd = &cobra.Command{
	Use:   "repodigestd",
	Short: "Progressive GitHub activity report daemon",
	Long: `repodigestd serves progressive, section-cached activity reports for
GitHub repositories: pull requests, issues, contributors, and a streamed
model-written summary, cached per day-aligned timeframe window.`,
	SilenceUsage: true,
}

// Execute runs the daemon CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", "",
		"Path to config file (default: ~/.repodigest/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&dbPath, "db", "",
		"Path to SQLite database (overrides config)",
	)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
