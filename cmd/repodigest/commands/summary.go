package commands

import (
	"fmt"
	"os"

	"github.com/roasbeef/repodigest/internal/client"
	"github.com/roasbeef/repodigest/internal/timeframe"
	"github.com/spf13/cobra"
)

var (
	summaryTimeframe string
	summaryForce     bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary <owner>/<repo>",
	Short: "Stream the narrative summary",
	Long: `Stream the model-written summary for a repository as it is
generated, printing chunks as they arrive. The daemon requires the pull
request and issue sections to be cached first; run the report command if
this fails with a dependency error.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummary,
}

func init() {
	summaryCmd.Flags().StringVarP(
		&summaryTimeframe, "timeframe", "t",
		string(timeframe.LastWeek),
		"Report window: last_day, last_week, last_month, last_year",
	)
	summaryCmd.Flags().BoolVar(
		&summaryForce, "force", false,
		"Regenerate the summary, bypassing the cache",
	)
}

func runSummary(cmd *cobra.Command, args []string) error {
	repoID, err := parseRepoArg(args[0])
	if err != nil {
		return err
	}

	tf, err := timeframe.Parse(summaryTimeframe)
	if err != nil {
		return err
	}

	fetcher := client.NewHTTPFetcher(serverAddr)
	_, cached, err := fetcher.FetchSummary(
		cmd.Context(), repoID, tf, summaryForce,
		func(chunk string) {
			fmt.Print(chunk)
		},
	)
	if err != nil {
		return err
	}
	fmt.Println()

	if cached {
		fmt.Fprintln(os.Stderr, "(served from cache)")
	}

	return nil
}
