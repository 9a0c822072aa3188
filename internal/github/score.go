package github

import (
	"sort"
	"strings"

	"github.com/roasbeef/repodigest/internal/report"
)

// commonBots are automation accounts whose items carry no signal for a
// human-facing report.
var commonBots = map[string]struct{}{
	"dependabot[bot]":          {},
	"renovate[bot]":            {},
	"pyup-bot":                 {},
	"snyk-bot":                 {},
	"greenkeeper[bot]":         {},
	"github-actions[bot]":      {},
	"github-learning-lab[bot]": {},
	"backport[bot]":            {},
	"stale[bot]":               {},
	"labeler[bot]":             {},
	"release-drafter[bot]":     {},
	"codecov[bot]":             {},
	"coveralls[bot]":           {},
	"reviewdog[bot]":           {},
	"mergeable[bot]":           {},
}

// IsBot reports whether the login belongs to a known automation account or
// an account GitHub itself marks as a bot.
func IsBot(user report.User) bool {
	if user.IsBot() {
		return true
	}

	login := strings.ToLower(user.Login)
	if _, ok := commonBots[login]; ok {
		return true
	}

	return strings.HasSuffix(login, "[bot]")
}

// FilterBots removes items authored by automation accounts.
func FilterBots(items []report.Item) []report.Item {
	filtered := make([]report.Item, 0, len(items))
	for _, item := range items {
		if IsBot(item.User) {
			continue
		}
		filtered = append(filtered, item)
	}

	return filtered
}

// engagement is the base attention score of an item.
func engagement(item report.Item) int {
	return item.Comments + item.Reactions
}

// Score computes an item's engagement score: comments plus reactions, with
// a bonus for how close the author is to the repository. Owners and members
// weigh heaviest, then collaborators, then prior contributors.
func Score(item report.Item) int {
	score := engagement(item)

	switch item.Association {
	case "OWNER", "MEMBER":
		score += 10
	case "COLLABORATOR":
		score += 5
	case "CONTRIBUTOR":
		score += 3
	}

	return score
}

// RankItems filters out bot items, keeps the maxItems most engaged, scores
// them, and returns them most interesting first. Ties break on comment
// count, then item number for a stable order.
func RankItems(items []report.Item, maxItems int) []report.Item {
	items = FilterBots(items)

	sort.SliceStable(items, func(i, j int) bool {
		return engagement(items[i]) > engagement(items[j])
	})
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	ranked := make([]report.Item, len(items))
	copy(ranked, items)
	for i := range ranked {
		ranked[i].Engagement = Score(ranked[i])
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Engagement != b.Engagement {
			return a.Engagement > b.Engagement
		}
		if a.Comments != b.Comments {
			return a.Comments > b.Comments
		}
		return a.Number < b.Number
	})

	return ranked
}

// GroupContributors groups the given PRs and issues by author and returns
// the maxPeople most active contributors, most active first. The Digest
// field is left empty for the caller to fill in.
func GroupContributors(prs, issues []report.Item,
	maxPeople int) []report.Contributor {

	byAuthor := make(map[string]*report.Contributor)

	add := func(item report.Item, isPR bool) {
		login := item.User.Login
		if login == "" || IsBot(item.User) {
			return
		}

		c, ok := byAuthor[login]
		if !ok {
			c = &report.Contributor{User: item.User}
			byAuthor[login] = c
		}

		if isPR {
			c.PRs = append(c.PRs, item)
		} else {
			c.Issues = append(c.Issues, item)
		}
		c.TotalItems++
	}

	for _, pr := range prs {
		add(pr, true)
	}
	for _, issue := range issues {
		add(issue, false)
	}

	contributors := make([]report.Contributor, 0, len(byAuthor))
	for _, c := range byAuthor {
		contributors = append(contributors, *c)
	}

	sort.SliceStable(contributors, func(i, j int) bool {
		a, b := contributors[i], contributors[j]
		if a.TotalItems != b.TotalItems {
			return a.TotalItems > b.TotalItems
		}
		return a.User.Login < b.User.Login
	})

	if len(contributors) > maxPeople {
		contributors = contributors[:maxPeople]
	}

	return contributors
}
