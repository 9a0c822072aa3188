// Package summarizer turns fetched GitHub activity into short model-written
// summaries: one-liners per item, digests per contributor, and a streaming
// narrative over a whole report window.
package summarizer

import (
	"context"
	"strings"
	"sync"

	"github.com/roasbeef/repodigest/internal/report"
)

// Summarizer is the model-facing collaborator of the report engine.
type Summarizer interface {
	// SummarizeItem writes a one-line summary for a single PR or issue.
	SummarizeItem(ctx context.Context, item report.Item) (string, error)

	// SummarizeContributor writes a short digest of one contributor's
	// items.
	SummarizeContributor(ctx context.Context,
		c report.Contributor) (string, error)

	// Narrate streams a narrative summary of the window's PRs and
	// issues, invoking sink once per chunk in order. It returns after
	// the final chunk or on the first failure.
	Narrate(ctx context.Context, prs, issues []report.Item,
		sink func(chunk string)) error
}

// SummarizeItems fills in the Summary field of every item, running at most
// maxConcurrent model calls at once. A failed item keeps an empty summary
// rather than failing the batch; the first error is returned for logging.
func SummarizeItems(ctx context.Context, s Summarizer, items []report.Item,
	maxConcurrent int) ([]report.Item, error) {

	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	out := make([]report.Item, len(items))
	copy(out, items)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	sem := make(chan struct{}, maxConcurrent)

	for i := range out {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errOnce.Do(func() { firstErr = ctx.Err() })
				return
			}

			summary, err := s.SummarizeItem(ctx, out[i])
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				return
			}
			out[i].Summary = summary
		}(i)
	}
	wg.Wait()

	return out, firstErr
}

// NarrativeInput flattens item summaries into the text handed to the
// narrative prompt, PR summaries first. Items without a model summary fall
// back to their title so sparse windows still narrate.
func NarrativeInput(prs, issues []report.Item) string {
	var lines []string
	for _, item := range append(append([]report.Item{}, prs...),
		issues...) {

		line := item.Summary
		if line == "" {
			line = item.Title
		}
		if line != "" {
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n")
}

// contributorInput flattens one contributor's item summaries for the digest
// prompt.
func contributorInput(c report.Contributor) string {
	var lines []string
	for _, item := range append(append([]report.Item{}, c.PRs...),
		c.Issues...) {

		line := item.Summary
		if line == "" {
			line = item.Title
		}
		if line != "" {
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n")
}
