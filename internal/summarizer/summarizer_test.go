package summarizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/repodigest/internal/report"
)

func TestSummarizeItemsFillsEveryItem(t *testing.T) {
	mock := &Mock{}
	items := []report.Item{
		{Number: 1, Title: "fix race"},
		{Number: 2, Title: "add cache"},
		{Number: 3, Title: "docs"},
	}

	out, err := SummarizeItems(context.Background(), mock, items, 2)
	require.NoError(t, err)
	require.Len(t, out, 3)

	for i, item := range out {
		require.Equal(t, items[i].Number, item.Number)
		require.Contains(t, item.Summary, items[i].Title)
	}
	require.Equal(t, int32(3), mock.ItemCalls.Load())

	// The input slice is untouched.
	require.Empty(t, items[0].Summary)
}

func TestSummarizeItemsPartialFailure(t *testing.T) {
	boom := errors.New("model unavailable")
	mock := &Mock{ItemErr: boom}
	items := []report.Item{{Number: 1, Title: "fix race"}}

	out, err := SummarizeItems(context.Background(), mock, items, 4)
	require.ErrorIs(t, err, boom)

	// Failed items keep an empty summary but are still returned.
	require.Len(t, out, 1)
	require.Empty(t, out[0].Summary)
}

func TestSummarizeItemsEmpty(t *testing.T) {
	mock := &Mock{}

	out, err := SummarizeItems(context.Background(), mock, nil, 4)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Zero(t, mock.ItemCalls.Load())
}

func TestNarrativeInput(t *testing.T) {
	prs := []report.Item{
		{Title: "fix race", Summary: "Fixed a startup race."},
		{Title: "untitled work"},
	}
	issues := []report.Item{
		{Title: "crash on load", Summary: "Crash when loading config."},
	}

	input := NarrativeInput(prs, issues)

	// PR lines come first; the unsummarized item falls back to its
	// title.
	require.Equal(
		t,
		"Fixed a startup race.\nuntitled work\n"+
			"Crash when loading config.",
		input,
	)
}

func TestContributorInput(t *testing.T) {
	c := report.Contributor{
		User: report.User{Login: "alice"},
		PRs: []report.Item{
			{Title: "fix race", Summary: "Fixed a startup race."},
		},
		Issues: []report.Item{{Title: "crash on load"}},
	}

	require.Equal(
		t, "Fixed a startup race.\ncrash on load",
		contributorInput(c),
	)
}
