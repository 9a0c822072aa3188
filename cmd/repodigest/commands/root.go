// Package commands implements the repodigest consumer CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// serverAddr is the base URL of a running repodigestd.
	serverAddr string

	// outputFormat controls output format (text, json).
	outputFormat string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "repodigest",
	Short: "GitHub repository activity reports",
	Long: `repodigest renders activity reports for a GitHub repository from a
running repodigestd daemon: top pull requests, top issues, leading
contributors, and a model-written narrative summary. Sections stream in
as they become ready.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&serverAddr, "addr", "http://127.0.0.1:8418",
		"Base URL of the repodigestd daemon",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(summaryCmd)
}
