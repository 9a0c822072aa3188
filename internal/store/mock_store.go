package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roasbeef/repodigest/internal/report"
	"github.com/roasbeef/repodigest/internal/timeframe"
)

// MockStore provides an in-memory implementation of the SectionStore
// interface for testing purposes. All data is stored in a map and protected
// by a mutex.
type MockStore struct {
	mu sync.RWMutex

	records map[string]report.SectionRecord
	policy  ExpiryPolicy

	// Clock is the injectable time source, defaulting to time.Now.
	Clock func() time.Time

	// PutCount tracks the number of Put calls per (key, section), so
	// tests can assert on overwrite behavior.
	PutCount map[string]int
}

// NewMockStore creates a new in-memory mock store.
func NewMockStore(policy ExpiryPolicy) *MockStore {
	return &MockStore{
		records:  make(map[string]report.SectionRecord),
		policy:   policy,
		Clock:    time.Now,
		PutCount: make(map[string]int),
	}
}

func recordKey(key report.CacheKey, section report.Section) string {
	return key.String() + "|" + string(section)
}

// Get retrieves the stored record for a (key, section) pair.
func (m *MockStore) Get(_ context.Context, key report.CacheKey,
	section report.Section) (report.SectionRecord, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[recordKey(key, section)]
	if !ok {
		return report.SectionRecord{}, report.ErrNotFound
	}

	if !json.Valid(rec.Payload) {
		return report.SectionRecord{}, fmt.Errorf(
			"%w: %s/%s", report.ErrCacheCorruption,
			key.RepoID, section,
		)
	}

	return rec, nil
}

// Put stores the record for a (key, section) pair.
func (m *MockStore) Put(_ context.Context, key report.CacheKey,
	section report.Section,
	payload json.RawMessage) (report.SectionRecord, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Clock().UTC().Truncate(time.Second)
	rec := report.SectionRecord{
		Key:         key,
		Section:     section,
		Payload:     payload,
		GeneratedAt: now,
		ExpiresAt:   m.policy.ExpiresAt(section, now),
	}

	k := recordKey(key, section)
	m.records[k] = rec
	m.PutCount[k]++

	return rec, nil
}

// ListSections returns every stored record for a repository and timeframe,
// most recently generated first.
func (m *MockStore) ListSections(_ context.Context, repoID string,
	tf timeframe.Timeframe) ([]report.SectionRecord, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []report.SectionRecord
	for _, rec := range m.records {
		if rec.Key.RepoID == repoID && rec.Key.Timeframe == tf {
			records = append(records, rec)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].GeneratedAt.Equal(records[j].GeneratedAt) {
			return records[i].GeneratedAt.After(
				records[j].GeneratedAt,
			)
		}
		return records[i].Section < records[j].Section
	})

	return records, nil
}

// Corrupt replaces a stored payload with undecodable bytes, simulating
// on-disk corruption for tests.
func (m *MockStore) Corrupt(key report.CacheKey, section report.Section) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := recordKey(key, section)
	if rec, ok := m.records[k]; ok {
		rec.Payload = json.RawMessage(`{"truncated`)
		m.records[k] = rec
	}
}

// Len returns the number of stored records.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.records)
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time check that MockStore satisfies SectionStore.
var _ SectionStore = (*MockStore)(nil)
