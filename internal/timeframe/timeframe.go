// Package timeframe resolves symbolic report timeframes into concrete
// day-aligned UTC intervals.
//
// Intervals are half-open [Start, End) where End is always 00:00 UTC of the
// current day: a timeframe covers the previous N full calendar days and
// never includes the in-progress day. Resolving the same timeframe twice
// within one calendar day therefore yields the same interval, and any
// interval that ends before today is historically immutable.
package timeframe

import (
	"errors"
	"fmt"
	"time"
)

// Timeframe is a symbolic report window.
type Timeframe string

const (
	// LastDay covers the single previous full calendar day.
	LastDay Timeframe = "last_day"

	// LastWeek covers the previous 7 full calendar days.
	LastWeek Timeframe = "last_week"

	// LastMonth covers the previous 30 full calendar days.
	LastMonth Timeframe = "last_month"

	// LastYear covers the previous 365 full calendar days.
	LastYear Timeframe = "last_year"
)

// All lists the supported timeframes in ascending span order.
var All = []Timeframe{LastDay, LastWeek, LastMonth, LastYear}

// ErrInvalidTimeframe is returned when a timeframe label is not one of the
// supported values.
var ErrInvalidTimeframe = errors.New("invalid timeframe")

// days maps each timeframe to the number of full calendar days it spans.
var days = map[Timeframe]int{
	LastDay:   1,
	LastWeek:  7,
	LastMonth: 30,
	LastYear:  365,
}

// Parse validates a timeframe label.
func Parse(label string) (Timeframe, error) {
	tf := Timeframe(label)
	if _, ok := days[tf]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeframe, label)
	}

	return tf, nil
}

// Days returns the number of full calendar days the timeframe spans.
func (t Timeframe) Days() int {
	return days[t]
}

// String returns the timeframe's wire label.
func (t Timeframe) String() string {
	return string(t)
}

// Interval is a half-open [Start, End) UTC time range aligned to day
// boundaries.
type Interval struct {
	// Start is the inclusive lower bound, at 00:00 UTC.
	Start time.Time

	// End is the exclusive upper bound, at 00:00 UTC.
	End time.Time
}

// Contains reports whether t falls within the interval.
func (i Interval) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(i.Start) && t.Before(i.End)
}

// Days returns the number of calendar days the interval spans.
func (i Interval) Days() int {
	return int(i.End.Sub(i.Start) / (24 * time.Hour))
}

// String renders the interval as an inclusive date range, which is the form
// GitHub's search qualifier syntax expects.
func (i Interval) String() string {
	lastDay := i.End.AddDate(0, 0, -1)
	return fmt.Sprintf(
		"%s..%s", i.Start.Format("2006-01-02"),
		lastDay.Format("2006-01-02"),
	)
}

// truncateToDay drops the time-of-day component, leaving 00:00 UTC.
func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Resolve maps a timeframe to its concrete interval as observed at now. The
// interval covers the previous N full calendar days and excludes the current
// day, so the result is stable for the whole calendar day containing now.
func Resolve(tf Timeframe, now time.Time) (Interval, error) {
	n, ok := days[tf]
	if !ok {
		return Interval{}, fmt.Errorf(
			"%w: %q", ErrInvalidTimeframe, tf,
		)
	}

	today := truncateToDay(now)

	return Interval{
		Start: today.AddDate(0, 0, -n),
		End:   today,
	}, nil
}
