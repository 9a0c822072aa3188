package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roasbeef/repodigest/internal/db"
	"github.com/roasbeef/repodigest/internal/report"
	"github.com/roasbeef/repodigest/internal/timeframe"
)

// newTestStore opens a fresh in-memory store with a fixed clock.
func newTestStore(t *testing.T, policy ExpiryPolicy,
	now time.Time) *SQLStore {

	t.Helper()

	database, err := db.OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return NewSQLStore(database, policy, nil, WithClock(func() time.Time {
		return now
	}))
}

func testKey(t *testing.T) report.CacheKey {
	t.Helper()

	key, err := report.NewCacheKey(
		"octo/demo", timeframe.LastWeek,
		time.Date(2024, 10, 21, 11, 30, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	return key
}

func TestSQLStoreRoundTrip(t *testing.T) {
	now := time.Date(2024, 10, 21, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, ExpiryPolicy{}, now)
	ctx := context.Background()
	key := testKey(t)

	payload := json.RawMessage(`[{"number":1,"title":"fix race"}]`)

	_, err := s.Get(ctx, key, report.SectionPRs)
	require.ErrorIs(t, err, report.ErrNotFound)

	put, err := s.Put(ctx, key, report.SectionPRs, payload)
	require.NoError(t, err)
	require.Equal(t, now, put.GeneratedAt)
	require.Nil(t, put.ExpiresAt)

	got, err := s.Get(ctx, key, report.SectionPRs)
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(got.Payload))
	require.True(t, got.Valid(now.Add(100*365*24*time.Hour)))
}

func TestSQLStoreSummaryExpiry(t *testing.T) {
	now := time.Date(2024, 10, 21, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, ExpiryPolicy{SummaryTTL: time.Hour}, now)
	ctx := context.Background()
	key := testKey(t)

	rec, err := s.Put(
		ctx, key, report.SectionSummary, json.RawMessage(`"quiet week"`),
	)
	require.NoError(t, err)
	require.NotNil(t, rec.ExpiresAt)

	got, err := s.Get(ctx, key, report.SectionSummary)
	require.NoError(t, err)
	require.True(t, got.Valid(now.Add(30*time.Minute)))
	require.False(t, got.Valid(now.Add(2*time.Hour)))
}

func TestSQLStoreZeroTTLSummaryAlwaysStale(t *testing.T) {
	now := time.Date(2024, 10, 21, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, ExpiryPolicy{}, now)
	ctx := context.Background()
	key := testKey(t)

	rec, err := s.Put(
		ctx, key, report.SectionSummary, json.RawMessage(`"tl;dr"`),
	)
	require.NoError(t, err)

	// With a zero TTL the record expires the instant it is generated,
	// but the text is still retrievable for rendering.
	require.False(t, rec.Valid(now))

	got, err := s.Get(ctx, key, report.SectionSummary)
	require.NoError(t, err)
	require.JSONEq(t, `"tl;dr"`, string(got.Payload))
}

func TestSQLStoreOverwrite(t *testing.T) {
	now := time.Date(2024, 10, 21, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, ExpiryPolicy{}, now)
	ctx := context.Background()
	key := testKey(t)

	_, err := s.Put(ctx, key, report.SectionIssues, json.RawMessage(`[1]`))
	require.NoError(t, err)

	_, err = s.Put(ctx, key, report.SectionIssues, json.RawMessage(`[1,2]`))
	require.NoError(t, err)

	got, err := s.Get(ctx, key, report.SectionIssues)
	require.NoError(t, err)
	require.JSONEq(t, `[1,2]`, string(got.Payload))

	// Overwrites update in place: still exactly one record per
	// (key, section).
	records, err := s.ListSections(ctx, key.RepoID, key.Timeframe)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestSQLStoreCorruptPayload(t *testing.T) {
	now := time.Date(2024, 10, 21, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, ExpiryPolicy{}, now)
	ctx := context.Background()
	key := testKey(t)

	_, err := s.Put(
		ctx, key, report.SectionPeople, json.RawMessage(`{"truncated`),
	)
	require.NoError(t, err)

	_, err = s.Get(ctx, key, report.SectionPeople)
	require.ErrorIs(t, err, report.ErrCacheCorruption)
}

func TestSQLStoreDistinctKeysDistinctRecords(t *testing.T) {
	now := time.Date(2024, 10, 21, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, ExpiryPolicy{}, now)
	ctx := context.Background()

	keyWeek := testKey(t)
	keyDay, err := report.NewCacheKey(
		"octo/demo", timeframe.LastDay,
		time.Date(2024, 10, 21, 11, 30, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	_, err = s.Put(ctx, keyWeek, report.SectionPRs, json.RawMessage(`[1]`))
	require.NoError(t, err)
	_, err = s.Put(ctx, keyDay, report.SectionPRs, json.RawMessage(`[2]`))
	require.NoError(t, err)

	gotWeek, err := s.Get(ctx, keyWeek, report.SectionPRs)
	require.NoError(t, err)
	require.JSONEq(t, `[1]`, string(gotWeek.Payload))

	gotDay, err := s.Get(ctx, keyDay, report.SectionPRs)
	require.NoError(t, err)
	require.JSONEq(t, `[2]`, string(gotDay.Payload))
}

// TestStoreRoundTripInvariant verifies that any payload written for any
// (timeframe, section) pair is read back byte-for-byte identical.
func TestStoreRoundTripInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		now := time.Date(2024, 10, 21, 12, 0, 0, 0, time.UTC)
		s := NewMockStore(ExpiryPolicy{})
		s.Clock = func() time.Time { return now }
		ctx := context.Background()

		tf := rapid.SampledFrom(timeframe.All).Draw(t, "timeframe")
		section := rapid.SampledFrom([]report.Section{
			report.SectionPRs, report.SectionIssues,
			report.SectionPeople,
		}).Draw(t, "section")

		key, err := report.NewCacheKey(
			rapid.StringMatching(`[a-z]+/[a-z]+`).Draw(t, "repo"),
			tf, now,
		)
		if err != nil {
			t.Fatal(err)
		}

		titles := rapid.SliceOfN(
			rapid.StringMatching(`[ -~]{0,40}`), 0, 8,
		).Draw(t, "titles")
		payload, err := json.Marshal(titles)
		if err != nil {
			t.Fatal(err)
		}

		if _, err := s.Put(ctx, key, section, payload); err != nil {
			t.Fatal(err)
		}

		got, err := s.Get(ctx, key, section)
		if err != nil {
			t.Fatal(err)
		}

		// PROPERTY: stored payload survives the round trip intact
		// and historical sections never expire.
		if string(got.Payload) != string(payload) {
			t.Fatalf("payload mutated: %q != %q",
				got.Payload, payload)
		}
		if got.ExpiresAt != nil {
			t.Fatalf("historical section should never expire")
		}
	})
}
