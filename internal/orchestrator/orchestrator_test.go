package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/repodigest/internal/report"
	"github.com/roasbeef/repodigest/internal/store"
	"github.com/roasbeef/repodigest/internal/summarizer"
	"github.com/roasbeef/repodigest/internal/timeframe"
)

// mockSource is a canned ActivitySource with call counters.
type mockSource struct {
	prs    []report.Item
	issues []report.Item

	prErr    error
	issueErr error

	// block, when set, stalls fetches until closed.
	block chan struct{}

	prCalls    atomic.Int32
	issueCalls atomic.Int32
}

func (m *mockSource) ListPullRequests(ctx context.Context, repoID string,
	interval timeframe.Interval) ([]report.Item, error) {

	m.prCalls.Add(1)
	if m.block != nil {
		<-m.block
	}
	if m.prErr != nil {
		return nil, m.prErr
	}

	return m.prs, nil
}

func (m *mockSource) ListIssues(ctx context.Context, repoID string,
	interval timeframe.Interval) ([]report.Item, error) {

	m.issueCalls.Add(1)
	if m.block != nil {
		<-m.block
	}
	if m.issueErr != nil {
		return nil, m.issueErr
	}

	return m.issues, nil
}

var testNow = time.Date(2024, 10, 21, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

type fixture struct {
	orch   *Orchestrator
	store  *store.MockStore
	source *mockSource
	model  *summarizer.Mock
}

func newFixture(t *testing.T, source *mockSource,
	policy store.ExpiryPolicy) *fixture {

	t.Helper()

	mockStore := store.NewMockStore(policy)
	mockStore.Clock = testClock
	model := &summarizer.Mock{}

	orch := New(
		DefaultConfig(), mockStore, source, model, nil,
		WithClock(testClock),
	)

	return &fixture{
		orch:   orch,
		store:  mockStore,
		source: source,
		model:  model,
	}
}

func demoSource() *mockSource {
	return &mockSource{
		prs: []report.Item{
			{
				Number: 101, Title: "Add WAL mode",
				User:     report.User{Login: "alice"},
				Comments: 7, IsPullRequest: true,
			},
			{
				Number: 102, Title: "Fix flaky test",
				User:     report.User{Login: "bob"},
				Comments: 3, IsPullRequest: true,
			},
			{
				Number: 103, Title: "Refactor config",
				User:     report.User{Login: "alice"},
				Comments: 1, IsPullRequest: true,
			},
		},
		issues: []report.Item{
			{
				Number: 201, Title: "Crash on startup",
				User:     report.User{Login: "carol"},
				Comments: 5,
			},
		},
	}
}

var demoReq = Request{RepoID: "octo/demo", Timeframe: timeframe.LastWeek}

func TestSectionCacheRoundTrip(t *testing.T) {
	f := newFixture(t, demoSource(), store.ExpiryPolicy{})
	ctx := context.Background()

	first, err := f.orch.Section(ctx, demoReq, report.SectionPRs)
	require.NoError(t, err)
	require.False(t, first.FromCache)
	require.Equal(t, report.StateReady, first.State)

	var items []report.Item
	require.NoError(t, json.Unmarshal(first.Payload, &items))
	require.Len(t, items, 3)
	require.Equal(t, 101, items[0].Number)
	require.NotEmpty(t, items[0].Summary)

	second, err := f.orch.Section(ctx, demoReq, report.SectionPRs)
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.JSONEq(t, string(first.Payload), string(second.Payload))

	// One fetch total: the second request was served from the store.
	require.Equal(t, int32(1), f.source.prCalls.Load())
}

func TestSectionSingleFlight(t *testing.T) {
	source := demoSource()
	source.block = make(chan struct{})
	f := newFixture(t, source, store.ExpiryPolicy{})
	ctx := context.Background()

	const numCallers = 8

	var wg sync.WaitGroup
	results := make(chan report.SectionResult, numCallers)
	for i := 0; i < numCallers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			res, err := f.orch.Section(
				ctx, demoReq, report.SectionPRs,
			)
			require.NoError(t, err)
			results <- res
		}()
	}

	require.Eventually(t, func() bool {
		return source.prCalls.Load() == 1
	}, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	close(source.block)
	wg.Wait()
	close(results)

	var payloads []string
	for res := range results {
		payloads = append(payloads, string(res.Payload))
	}
	require.Len(t, payloads, numCallers)
	for _, p := range payloads[1:] {
		require.JSONEq(t, payloads[0], p)
	}

	// Exactly one generation served every caller.
	require.Equal(t, int32(1), source.prCalls.Load())
}

func TestSectionForceBypassesCache(t *testing.T) {
	f := newFixture(t, demoSource(), store.ExpiryPolicy{})
	ctx := context.Background()

	_, err := f.orch.Section(ctx, demoReq, report.SectionPRs)
	require.NoError(t, err)

	forced := demoReq
	forced.Force = true
	res, err := f.orch.Section(ctx, forced, report.SectionPRs)
	require.NoError(t, err)
	require.False(t, res.FromCache)

	require.Equal(t, int32(2), f.source.prCalls.Load())

	// The forced result overwrote the stored record in place.
	require.Equal(t, 1, f.store.Len())
}

func TestSectionCorruptionTreatedAsMiss(t *testing.T) {
	f := newFixture(t, demoSource(), store.ExpiryPolicy{})
	ctx := context.Background()

	first, err := f.orch.Section(ctx, demoReq, report.SectionPRs)
	require.NoError(t, err)

	key, err := f.orch.Key(demoReq)
	require.NoError(t, err)
	f.store.Corrupt(key, report.SectionPRs)

	res, err := f.orch.Section(ctx, demoReq, report.SectionPRs)
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.JSONEq(t, string(first.Payload), string(res.Payload))
	require.Equal(t, int32(2), f.source.prCalls.Load())
}

func TestSectionUpstreamFailureNotCached(t *testing.T) {
	source := demoSource()
	source.prErr = errors.New("api rate limit exceeded")
	f := newFixture(t, source, store.ExpiryPolicy{})
	ctx := context.Background()

	_, err := f.orch.Section(ctx, demoReq, report.SectionPRs)
	require.True(t, report.IsUpstreamFailure(err))
	require.Zero(t, f.store.Len())

	// The failure was not remembered: clearing the fault heals the
	// section on the next request.
	source.prErr = nil
	res, err := f.orch.Section(ctx, demoReq, report.SectionPRs)
	require.NoError(t, err)
	require.Equal(t, report.StateReady, res.State)
}

func TestSummaryDependencyGate(t *testing.T) {
	f := newFixture(t, demoSource(), store.ExpiryPolicy{})
	ctx := context.Background()

	// No prs or issues stored yet: the summary fails fast.
	start := time.Now()
	_, err := f.orch.Section(ctx, demoReq, report.SectionSummary)
	require.ErrorIs(t, err, report.ErrDependencyUnavailable)
	require.Less(t, time.Since(start), time.Second)
	require.Zero(t, f.model.NarrateCalls.Load())

	// With only prs in place it still refuses.
	_, err = f.orch.Section(ctx, demoReq, report.SectionPRs)
	require.NoError(t, err)
	_, err = f.orch.Section(ctx, demoReq, report.SectionSummary)
	require.ErrorIs(t, err, report.ErrDependencyUnavailable)

	// Both inputs present: the summary generates.
	_, err = f.orch.Section(ctx, demoReq, report.SectionIssues)
	require.NoError(t, err)

	res, err := f.orch.Section(ctx, demoReq, report.SectionSummary)
	require.NoError(t, err)

	var text string
	require.NoError(t, json.Unmarshal(res.Payload, &text))
	require.Equal(t, f.model.NarratedText(f.source.prs,
		f.source.issues), text)
}

func TestSummaryAlwaysStaleByDefault(t *testing.T) {
	f := newFixture(t, demoSource(), store.ExpiryPolicy{})
	ctx := context.Background()

	_, err := f.orch.Section(ctx, demoReq, report.SectionPRs)
	require.NoError(t, err)
	_, err = f.orch.Section(ctx, demoReq, report.SectionIssues)
	require.NoError(t, err)

	_, err = f.orch.Section(ctx, demoReq, report.SectionSummary)
	require.NoError(t, err)
	_, err = f.orch.Section(ctx, demoReq, report.SectionSummary)
	require.NoError(t, err)

	// Zero TTL: every request narrates afresh.
	require.Equal(t, int32(2), f.model.NarrateCalls.Load())
}

func TestSummaryCachedWithTTL(t *testing.T) {
	f := newFixture(t, demoSource(), store.ExpiryPolicy{
		SummaryTTL: time.Hour,
	})
	ctx := context.Background()

	_, err := f.orch.Section(ctx, demoReq, report.SectionPRs)
	require.NoError(t, err)
	_, err = f.orch.Section(ctx, demoReq, report.SectionIssues)
	require.NoError(t, err)

	first, err := f.orch.Section(ctx, demoReq, report.SectionSummary)
	require.NoError(t, err)
	require.False(t, first.FromCache)

	second, err := f.orch.Section(ctx, demoReq, report.SectionSummary)
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.JSONEq(t, string(first.Payload), string(second.Payload))
	require.Equal(t, int32(1), f.model.NarrateCalls.Load())
}

func TestStreamSummaryChunksInOrder(t *testing.T) {
	f := newFixture(t, demoSource(), store.ExpiryPolicy{})
	f.model.NarrateChunks = []string{"Busy ", "week ", "overall."}
	ctx := context.Background()

	_, err := f.orch.Section(ctx, demoReq, report.SectionPRs)
	require.NoError(t, err)
	_, err = f.orch.Section(ctx, demoReq, report.SectionIssues)
	require.NoError(t, err)

	stream, err := f.orch.StreamSummary(ctx, demoReq)
	require.NoError(t, err)
	require.False(t, stream.FromCache)

	var chunks []string
	for chunk := range stream.Text.Subscribe(ctx) {
		chunks = append(chunks, chunk)
	}
	require.NoError(t, stream.Text.Err())
	require.Equal(t, []string{"Busy ", "week ", "overall."}, chunks)

	// A late subscriber replays the finished narration in full.
	text, err := stream.Text.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, "Busy week overall.", text)
}

func TestStreamSummaryFailureBroadcast(t *testing.T) {
	f := newFixture(t, demoSource(), store.ExpiryPolicy{})
	boom := errors.New("model connection dropped")
	f.model.NarrateErr = boom
	ctx := context.Background()

	_, err := f.orch.Section(ctx, demoReq, report.SectionPRs)
	require.NoError(t, err)
	_, err = f.orch.Section(ctx, demoReq, report.SectionIssues)
	require.NoError(t, err)

	stream, err := f.orch.StreamSummary(ctx, demoReq)
	require.NoError(t, err)

	_, err = stream.Text.Collect(ctx)
	require.ErrorIs(t, err, boom)

	// Only the item sections are stored; the failed summary is not.
	require.Equal(t, 2, f.store.Len())
}

func TestReportPartialFailureIsolation(t *testing.T) {
	source := demoSource()
	source.issueErr = errors.New("api rate limit exceeded")
	f := newFixture(t, source, store.ExpiryPolicy{})

	res := f.orch.Report(context.Background(), demoReq)

	// prs arrived despite the issues failure.
	require.NotNil(t, res.Report.PRs)
	require.Len(t, res.Report.PRs, 3)

	require.Nil(t, res.Report.Issues)
	require.Contains(t, res.Report.Failed, report.SectionIssues)
	require.True(t, report.IsUpstreamFailure(
		res.Report.Failed[report.SectionIssues],
	))

	// The summary inherits the missing dependency, attributed as such
	// rather than hanging or blanking the report.
	require.ErrorIs(
		t, res.Report.Failed[report.SectionSummary],
		report.ErrDependencyUnavailable,
	)

	require.True(t, res.Report.Complete())
}

func TestReportFullScenario(t *testing.T) {
	f := newFixture(t, demoSource(), store.ExpiryPolicy{})

	res := f.orch.Report(context.Background(), demoReq)

	require.Empty(t, res.Report.Failed)
	require.Len(t, res.Report.PRs, 3)
	require.Len(t, res.Report.Issues, 1)
	require.NotNil(t, res.Report.Summary)
	require.True(t, res.Report.Complete())

	// alice authored two of the three PRs and leads the people section.
	require.NotEmpty(t, res.Report.People)
	require.Equal(t, "alice", res.Report.People[0].User.Login)
	require.Equal(t, 2, res.Report.People[0].TotalItems)
	require.NotEmpty(t, res.Report.People[0].Digest)

	// One fetch per item section; people reused the stored payloads
	// when they were already in place.
	require.LessOrEqual(t, f.source.prCalls.Load(), int32(2))
	require.LessOrEqual(t, f.source.issueCalls.Load(), int32(2))

	require.Equal(t, report.StateReady,
		res.Results[report.SectionSummary].State)
}

func TestStateTransitions(t *testing.T) {
	source := demoSource()
	f := newFixture(t, source, store.ExpiryPolicy{})
	ctx := context.Background()

	state, err := f.orch.State(ctx, demoReq, report.SectionPRs)
	require.NoError(t, err)
	require.Equal(t, report.StateMissing, state)

	source.block = make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.orch.Section(ctx, demoReq, report.SectionPRs)
		require.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		state, err := f.orch.State(ctx, demoReq, report.SectionPRs)
		return err == nil && state == report.StateGenerating
	}, time.Second, time.Millisecond)

	close(source.block)
	<-done

	state, err = f.orch.State(ctx, demoReq, report.SectionPRs)
	require.NoError(t, err)
	require.Equal(t, report.StateReady, state)
}

func TestSameDayRequestsShareKey(t *testing.T) {
	f := newFixture(t, demoSource(), store.ExpiryPolicy{})

	a, err := f.orch.Key(demoReq)
	require.NoError(t, err)

	// Later the same day the key is identical, so the morning's cache
	// still serves.
	testNowLater := testNow.Add(9 * time.Hour)
	orchLater := New(
		DefaultConfig(), f.store, f.source, f.model, nil,
		WithClock(func() time.Time { return testNowLater }),
	)
	b, err := orchLater.Key(demoReq)
	require.NoError(t, err)
	require.Equal(t, a, b)
}
