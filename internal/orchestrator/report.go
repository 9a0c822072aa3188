package orchestrator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/roasbeef/repodigest/internal/report"
)

// ReportResult is the outcome of a full-report request: the assembled
// progressive view plus the raw per-section results. A section's failure
// appears in its result and in the view's Failed map without affecting its
// siblings.
type ReportResult struct {
	Report  *report.Report
	Results map[report.Section]report.SectionResult
}

// Report generates or serves the whole report for the request's window. The
// prs, issues and people sections run in parallel; the summary runs after
// its prs and issues inputs are in place. Always returns a result, even when
// every section failed.
func (o *Orchestrator) Report(ctx context.Context,
	req Request) *ReportResult {

	view := &report.Report{
		RepoID:    req.RepoID,
		Timeframe: req.Timeframe,
		Failed:    make(map[report.Section]error),
	}
	results := make(map[report.Section]report.SectionResult)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	independent := []report.Section{
		report.SectionPRs, report.SectionIssues, report.SectionPeople,
	}
	for _, section := range independent {
		wg.Add(1)
		go func(section report.Section) {
			defer wg.Done()

			res, err := o.Section(ctx, req, section)

			mu.Lock()
			defer mu.Unlock()

			results[section] = res
			if err != nil {
				view.Failed[section] = err
				return
			}

			o.fillSection(view, section, res.Payload)
		}(section)
	}
	wg.Wait()

	// The summary needs both its inputs; a failed input surfaces as a
	// dependency failure here rather than a hang.
	res, err := o.Section(ctx, req, report.SectionSummary)
	results[report.SectionSummary] = res
	if err != nil {
		view.Failed[report.SectionSummary] = err
	} else {
		var text string
		if err := json.Unmarshal(res.Payload, &text); err == nil {
			view.Summary = &text
		}
	}

	return &ReportResult{Report: view, Results: results}
}

// fillSection decodes one section payload into its slot in the progressive
// view. Callers hold the view's lock.
func (o *Orchestrator) fillSection(view *report.Report,
	section report.Section, payload json.RawMessage) {

	switch section {
	case report.SectionPRs:
		var items []report.Item
		if err := json.Unmarshal(payload, &items); err == nil {
			if items == nil {
				items = []report.Item{}
			}
			view.PRs = items
		}

	case report.SectionIssues:
		var items []report.Item
		if err := json.Unmarshal(payload, &items); err == nil {
			if items == nil {
				items = []report.Item{}
			}
			view.Issues = items
		}

	case report.SectionPeople:
		var people []report.Contributor
		if err := json.Unmarshal(payload, &people); err == nil {
			if people == nil {
				people = []report.Contributor{}
			}
			view.People = people
		}
	}
}
