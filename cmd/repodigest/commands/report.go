package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/roasbeef/repodigest/internal/client"
	"github.com/roasbeef/repodigest/internal/report"
	"github.com/roasbeef/repodigest/internal/timeframe"
	"github.com/spf13/cobra"
)

var (
	reportTimeframe string
	reportForce     bool
)

var reportCmd = &cobra.Command{
	Use:   "report <owner>/<repo>",
	Short: "Fetch a repository activity report",
	Long: `Fetch the full report for a repository: pull requests, issues,
contributors and the narrative summary. In text mode sections print as
they arrive; a failed section never suppresses the others.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(
		&reportTimeframe, "timeframe", "t", string(timeframe.LastWeek),
		"Report window: last_day, last_week, last_month, last_year",
	)
	reportCmd.Flags().BoolVar(
		&reportForce, "force", false,
		"Regenerate all sections, bypassing the cache",
	)
}

func parseRepoArg(arg string) (string, error) {
	parts := strings.Split(arg, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid repository %q, want owner/repo",
			arg)
	}
	return arg, nil
}

func runReport(_ *cobra.Command, args []string) error {
	repoID, err := parseRepoArg(args[0])
	if err != nil {
		return err
	}

	tf, err := timeframe.Parse(reportTimeframe)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	manager := client.NewManager(client.NewHTTPFetcher(serverAddr), logger)
	sub, err := manager.Request(repoID, tf, reportForce)
	if err != nil {
		return err
	}
	defer sub.Cancel()

	var view report.Report
	printed := make(map[report.Section]bool)

	for view = range sub.Updates {
		if outputFormat != "text" {
			continue
		}
		printArrivals(&view, printed)
	}

	switch outputFormat {
	case "json":
		return outputJSON(&view)

	default:
		printFailures(&view)
	}

	return nil
}

// printArrivals renders the sections that became ready since the previous
// snapshot.
func printArrivals(view *report.Report, printed map[report.Section]bool) {
	if view.PRs != nil && !printed[report.SectionPRs] {
		printed[report.SectionPRs] = true
		printItems("Pull Requests", view.PRs)
	}
	if view.Issues != nil && !printed[report.SectionIssues] {
		printed[report.SectionIssues] = true
		printItems("Issues", view.Issues)
	}
	if view.People != nil && !printed[report.SectionPeople] {
		printed[report.SectionPeople] = true
		printPeople(view.People)
	}
	if view.Summary != nil && !printed[report.SectionSummary] {
		printed[report.SectionSummary] = true
		fmt.Printf("Summary\n\n%s\n\n", *view.Summary)
	}
}

func printItems(heading string, items []report.Item) {
	fmt.Printf("%s (%d)\n\n", heading, len(items))
	for _, item := range items {
		fmt.Printf("  #%d %s [%s, @%s]\n", item.Number, item.Title,
			item.State, item.User.Login)
		if item.Summary != "" {
			fmt.Printf("      %s\n", item.Summary)
		}
	}
	fmt.Println()
}

func printPeople(people []report.Contributor) {
	fmt.Printf("Contributors (%d)\n\n", len(people))
	for _, c := range people {
		fmt.Printf("  @%s: %d items (%d PRs, %d issues)\n",
			c.User.Login, c.TotalItems, len(c.PRs), len(c.Issues))
		if c.Digest != "" {
			fmt.Printf("      %s\n", c.Digest)
		}
	}
	fmt.Println()
}

func printFailures(view *report.Report) {
	for _, section := range report.Sections {
		if err, ok := view.Failed[section]; ok {
			fmt.Fprintf(os.Stderr, "section %s failed: %v\n",
				section, err)
		}
	}
}

// outputJSON prints the final report view, including per-section failures,
// as indented JSON.
func outputJSON(view *report.Report) error {
	failed := make(map[string]string, len(view.Failed))
	for section, err := range view.Failed {
		failed[string(section)] = err.Error()
	}

	out := struct {
		*report.Report
		Failed map[string]string `json:"failed,omitempty"`
	}{Report: view, Failed: failed}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	return nil
}
