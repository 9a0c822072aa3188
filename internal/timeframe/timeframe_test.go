package timeframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParse(t *testing.T) {
	for _, tf := range All {
		parsed, err := Parse(string(tf))
		require.NoError(t, err)
		require.Equal(t, tf, parsed)
	}

	_, err := Parse("fortnight")
	require.ErrorIs(t, err, ErrInvalidTimeframe)

	_, err = Parse("")
	require.ErrorIs(t, err, ErrInvalidTimeframe)
}

func TestResolveLastDay(t *testing.T) {
	now := time.Date(2024, 10, 21, 15, 42, 7, 0, time.UTC)

	interval, err := Resolve(LastDay, now)
	require.NoError(t, err)

	require.Equal(
		t, time.Date(2024, 10, 20, 0, 0, 0, 0, time.UTC),
		interval.Start,
	)
	require.Equal(
		t, time.Date(2024, 10, 21, 0, 0, 0, 0, time.UTC),
		interval.End,
	)

	// The current day is excluded.
	require.False(t, interval.Contains(now))
	require.True(t, interval.Contains(
		time.Date(2024, 10, 20, 23, 59, 59, 0, time.UTC),
	))
}

func TestResolveLastWeek(t *testing.T) {
	now := time.Date(2024, 10, 21, 9, 0, 0, 0, time.UTC)

	interval, err := Resolve(LastWeek, now)
	require.NoError(t, err)

	require.Equal(
		t, time.Date(2024, 10, 14, 0, 0, 0, 0, time.UTC),
		interval.Start,
	)
	require.Equal(
		t, time.Date(2024, 10, 21, 0, 0, 0, 0, time.UTC),
		interval.End,
	)
	require.Equal(t, 7, interval.Days())
}

func TestResolveUnknown(t *testing.T) {
	_, err := Resolve(Timeframe("quarter"), time.Now())
	require.ErrorIs(t, err, ErrInvalidTimeframe)
}

func TestResolveNonUTCInput(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	local := time.Date(2024, 10, 22, 3, 0, 0, 0, loc)

	interval, err := Resolve(LastDay, local)
	require.NoError(t, err)

	// 03:00 UTC+9 on Oct 22 is 18:00 UTC on Oct 21, so the window is
	// Oct 20.
	require.Equal(
		t, time.Date(2024, 10, 20, 0, 0, 0, 0, time.UTC),
		interval.Start,
	)
}

func TestIntervalString(t *testing.T) {
	interval := Interval{
		Start: time.Date(2024, 10, 14, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 10, 21, 0, 0, 0, 0, time.UTC),
	}

	// Rendered inclusively on both ends for search qualifiers.
	require.Equal(t, "2024-10-14..2024-10-20", interval.String())
}

// TestResolveSameDayDeterminism verifies that any two resolutions within the
// same calendar day produce the same day-aligned interval ending at today's
// midnight.
func TestResolveSameDayDeterminism(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tf := rapid.SampledFrom(All).Draw(t, "timeframe")

		day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(
			0, 0, rapid.IntRange(0, 730).Draw(t, "day"),
		)
		secA := rapid.IntRange(0, 86399).Draw(t, "secA")
		secB := rapid.IntRange(0, 86399).Draw(t, "secB")

		a, err := Resolve(tf, day.Add(time.Duration(secA)*time.Second))
		if err != nil {
			t.Fatal(err)
		}
		b, err := Resolve(tf, day.Add(time.Duration(secB)*time.Second))
		if err != nil {
			t.Fatal(err)
		}

		// PROPERTY: same day in, same interval out.
		if !a.Start.Equal(b.Start) || !a.End.Equal(b.End) {
			t.Fatalf("non-deterministic: %v vs %v", a, b)
		}

		// PROPERTY: day-aligned, half-open, ends at today's midnight.
		if !a.End.Equal(day) {
			t.Fatalf("end %v != midnight %v", a.End, day)
		}
		if a.Days() != tf.Days() {
			t.Fatalf("span %d != %d days", a.Days(), tf.Days())
		}
	})
}

// TestResolveHistoricalStability verifies that intervals resolved on later
// days never overlap with the future: the window always ends strictly before
// the observation time's day is over.
func TestResolveHistoricalStability(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tf := rapid.SampledFrom(All).Draw(t, "timeframe")
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(
			time.Duration(
				rapid.Int64Range(0, 2*365*86400).Draw(t, "off"),
			) * time.Second,
		)

		interval, err := Resolve(tf, now)
		if err != nil {
			t.Fatal(err)
		}

		// PROPERTY: the interval never contains now or anything
		// after it.
		if interval.Contains(now) {
			t.Fatalf("interval %v contains now %v", interval, now)
		}
		if interval.End.After(now) {
			t.Fatalf("end %v after now %v", interval.End, now)
		}
	})
}
