package report

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/repodigest/internal/timeframe"
)

func TestCacheKeySameDayStable(t *testing.T) {
	morning := time.Date(2024, 10, 21, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 10, 21, 22, 30, 0, 0, time.UTC)

	a, err := NewCacheKey("octo/demo", timeframe.LastWeek, morning)
	require.NoError(t, err)
	b, err := NewCacheKey("octo/demo", timeframe.LastWeek, evening)
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Equal(t, a.String(), b.String())
}

func TestCacheKeyInvalidTimeframe(t *testing.T) {
	_, err := NewCacheKey(
		"octo/demo", timeframe.Timeframe("decade"), time.Now(),
	)
	require.ErrorIs(t, err, timeframe.ErrInvalidTimeframe)
}

func TestCacheKeyDistinctAcrossDays(t *testing.T) {
	monday := time.Date(2024, 10, 21, 12, 0, 0, 0, time.UTC)
	tuesday := time.Date(2024, 10, 22, 12, 0, 0, 0, time.UTC)

	a, err := NewCacheKey("octo/demo", timeframe.LastWeek, monday)
	require.NoError(t, err)
	b, err := NewCacheKey("octo/demo", timeframe.LastWeek, tuesday)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestSectionRecordValidity(t *testing.T) {
	now := time.Date(2024, 10, 21, 12, 0, 0, 0, time.UTC)

	permanent := SectionRecord{GeneratedAt: now}
	require.True(t, permanent.Valid(now.AddDate(10, 0, 0)))

	expiry := now.Add(time.Hour)
	ephemeral := SectionRecord{GeneratedAt: now, ExpiresAt: &expiry}
	require.True(t, ephemeral.Valid(now.Add(59*time.Minute)))
	require.False(t, ephemeral.Valid(now.Add(time.Hour)))
}

func TestReportComplete(t *testing.T) {
	r := &Report{Failed: make(map[Section]error)}
	require.False(t, r.Complete())

	r.PRs = []Item{}
	r.Issues = []Item{}
	r.People = []Contributor{}
	require.False(t, r.Complete())

	// A failed summary still completes the report: section failures are
	// terminal outcomes, not holes.
	r.Failed[SectionSummary] = ErrDependencyUnavailable
	require.True(t, r.Complete())
}

func TestUpstreamError(t *testing.T) {
	cause := errors.New("api rate limit exceeded")
	err := NewUpstreamError("github", SectionPRs, cause)

	require.True(t, IsUpstreamFailure(err))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "github")
	require.Contains(t, err.Error(), "prs")

	require.False(t, IsUpstreamFailure(ErrNotFound))
	require.True(t, IsRetryable(err))
	require.True(t, IsRetryable(ErrGenerationTimeout))
	require.False(t, IsRetryable(ErrDependencyUnavailable))
}
