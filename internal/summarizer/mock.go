package summarizer

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/roasbeef/repodigest/internal/report"
)

// Mock is a canned Summarizer for tests. Each method counts its calls; the
// error fields, when set, make the corresponding method fail.
type Mock struct {
	ItemCalls        atomic.Int32
	ContributorCalls atomic.Int32
	NarrateCalls     atomic.Int32

	ItemErr        error
	ContributorErr error
	NarrateErr     error

	// NarrateChunks are the chunks Narrate emits before returning. When
	// empty a small default narration is used.
	NarrateChunks []string
}

// SummarizeItem returns a deterministic summary derived from the item.
func (m *Mock) SummarizeItem(_ context.Context,
	item report.Item) (string, error) {

	m.ItemCalls.Add(1)
	if m.ItemErr != nil {
		return "", m.ItemErr
	}

	return fmt.Sprintf("summary of #%d %s", item.Number, item.Title), nil
}

// SummarizeContributor returns a deterministic digest.
func (m *Mock) SummarizeContributor(_ context.Context,
	c report.Contributor) (string, error) {

	m.ContributorCalls.Add(1)
	if m.ContributorErr != nil {
		return "", m.ContributorErr
	}

	return fmt.Sprintf("%s worked on %d items",
		c.User.Login, c.TotalItems), nil
}

// Narrate emits the configured chunks in order.
func (m *Mock) Narrate(ctx context.Context, prs, issues []report.Item,
	sink func(chunk string)) error {

	m.NarrateCalls.Add(1)
	if m.NarrateErr != nil {
		return m.NarrateErr
	}

	chunks := m.NarrateChunks
	if len(chunks) == 0 {
		chunks = []string{
			fmt.Sprintf("In pull requests, %d items. ", len(prs)),
			fmt.Sprintf("Issues focused on %d items.", len(issues)),
		}
	}

	for _, chunk := range chunks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sink(chunk)
	}

	return nil
}

// NarratedText is what a full default narration would produce, for test
// assertions.
func (m *Mock) NarratedText(prs, issues []report.Item) string {
	if len(m.NarrateChunks) > 0 {
		return strings.Join(m.NarrateChunks, "")
	}

	return fmt.Sprintf(
		"In pull requests, %d items. Issues focused on %d items.",
		len(prs), len(issues),
	)
}

// Compile-time check that Mock satisfies Summarizer.
var _ Summarizer = (*Mock)(nil)
