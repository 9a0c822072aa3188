// Package store persists report sections keyed by their CacheKey. It exposes
// a narrow SectionStore interface with a SQLite-backed implementation for the
// daemon and an in-memory mock for tests.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/roasbeef/repodigest/internal/report"
	"github.com/roasbeef/repodigest/internal/timeframe"
)

// SectionStore is the persistence boundary of the report engine.
type SectionStore interface {
	// Get retrieves the stored record for a (key, section) pair. It
	// returns report.ErrNotFound on a miss and report.ErrCacheCorruption
	// if the stored payload cannot be decoded.
	Get(ctx context.Context, key report.CacheKey,
		section report.Section) (report.SectionRecord, error)

	// Put atomically stores (or overwrites) the record for a (key,
	// section) pair, stamping the generation time and the expiry derived
	// from the store's policy. Concurrent readers never observe a
	// half-written payload.
	Put(ctx context.Context, key report.CacheKey, section report.Section,
		payload json.RawMessage) (report.SectionRecord, error)

	// ListSections returns every stored record for a repository and
	// timeframe, most recently generated first.
	ListSections(ctx context.Context, repoID string,
		tf timeframe.Timeframe) ([]report.SectionRecord, error)

	// Close releases the underlying resources.
	Close() error
}

// ExpiryPolicy decides how long a freshly generated section stays valid.
//
// Historical day-aligned windows are immutable, so the prs, issues and
// people sections never expire. The narrative summary is a product decision
// rather than a derivation, so its lifetime is a knob: the default of zero
// keeps the source behavior of always regenerating it.
type ExpiryPolicy struct {
	// SummaryTTL is how long a stored summary remains valid. Zero means
	// the summary is always treated as stale and regenerated on demand.
	SummaryTTL time.Duration
}

// ExpiresAt returns the expiry for a section generated at the given time, or
// nil if the record is permanently valid.
func (p ExpiryPolicy) ExpiresAt(section report.Section,
	generatedAt time.Time) *time.Time {

	if section != report.SectionSummary {
		return nil
	}

	expiry := generatedAt.Add(p.SummaryTTL)
	return &expiry
}
