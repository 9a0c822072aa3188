// Package github fetches repository activity over the GitHub search API,
// scores items by engagement, and filters out automation accounts.
package github

import (
	"fmt"
	"strings"

	"github.com/roasbeef/repodigest/internal/timeframe"
)

// ItemType selects which kind of items a search returns.
type ItemType string

const (
	// TypePR restricts a search to pull requests.
	TypePR ItemType = "pr"

	// TypeIssue restricts a search to issues.
	TypeIssue ItemType = "issue"

	// TypeAll places no type restriction on the search.
	TypeAll ItemType = "all"
)

// SearchQuery describes one GitHub issue-search query. Zero fields are
// omitted from the rendered query string.
type SearchQuery struct {
	// RepoID is the owner/name slug. Required.
	RepoID string

	// Type restricts the search to PRs or issues.
	Type ItemType

	// Author restricts the search to one author's items.
	Author string

	// Labels restricts the search to items carrying all given labels.
	Labels []string

	// Created restricts the search to items created in the interval.
	Created *timeframe.Interval

	// State is "open", "closed" or "" for both.
	State string

	// MinComments drops items with fewer comments.
	MinComments int

	// Extra appends raw qualifier terms, e.g. "sort:comments-desc".
	Extra []string
}

// Build renders the query in GitHub search qualifier syntax.
func (q SearchQuery) Build() string {
	parts := []string{fmt.Sprintf("repo:%s", q.RepoID)}

	switch q.Type {
	case TypePR:
		parts = append(parts, "is:pr")
	case TypeIssue:
		parts = append(parts, "is:issue")
	}

	if q.State == "open" || q.State == "closed" {
		parts = append(parts, "is:"+q.State)
	}

	if q.Author != "" {
		parts = append(parts, "author:"+q.Author)
	}

	for _, label := range q.Labels {
		parts = append(parts, fmt.Sprintf("label:%q", label))
	}

	if q.Created != nil {
		parts = append(parts, "created:"+q.Created.String())
	}

	if q.MinComments > 0 {
		parts = append(parts, fmt.Sprintf(
			"comments:>=%d", q.MinComments,
		))
	}

	parts = append(parts, q.Extra...)

	return strings.Join(parts, " ")
}
