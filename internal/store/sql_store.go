package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	prand "math/rand"
	"time"

	"github.com/roasbeef/repodigest/internal/db"
	"github.com/roasbeef/repodigest/internal/report"
	"github.com/roasbeef/repodigest/internal/timeframe"
)

const (
	// defaultNumWriteRetries is the default number of times a write is
	// retried if it fails with an error that permits repetition.
	defaultNumWriteRetries = 10

	// defaultInitialRetryDelay is the base delay between retries. The
	// actual delay is randomized between 50% and 150% of this value and
	// doubled on each attempt, so concurrent writers created at the same
	// time do not retry in lockstep.
	defaultInitialRetryDelay = time.Millisecond * 40

	// defaultMaxRetryDelay is the maximum delay between retries.
	defaultMaxRetryDelay = time.Second * 3
)

// SQLStore is the SQLite-backed SectionStore implementation.
type SQLStore struct {
	db     *sql.DB
	policy ExpiryPolicy
	log    *slog.Logger

	// clock returns the current time; injectable for tests.
	clock func() time.Time

	numRetries        int
	initialRetryDelay time.Duration
	maxRetryDelay     time.Duration
}

// SQLStoreOption is a functional option for NewSQLStore.
type SQLStoreOption func(*SQLStore)

// WithClock overrides the store's time source.
func WithClock(clock func() time.Time) SQLStoreOption {
	return func(s *SQLStore) {
		s.clock = clock
	}
}

// WithWriteRetries overrides the number of retries for retryable write
// failures.
func WithWriteRetries(n int) SQLStoreOption {
	return func(s *SQLStore) {
		s.numRetries = n
	}
}

// NewSQLStore creates a SectionStore backed by the given database handle.
func NewSQLStore(database *sql.DB, policy ExpiryPolicy, log *slog.Logger,
	opts ...SQLStoreOption) *SQLStore {

	if log == nil {
		log = slog.Default()
	}

	s := &SQLStore{
		db:                database,
		policy:            policy,
		log:               log.With("component", "store"),
		clock:             time.Now,
		numRetries:        defaultNumWriteRetries,
		initialRetryDelay: defaultInitialRetryDelay,
		maxRetryDelay:     defaultMaxRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Get retrieves the stored record for a (key, section) pair.
func (s *SQLStore) Get(ctx context.Context, key report.CacheKey,
	section report.Section) (report.SectionRecord, error) {

	row := s.db.QueryRowContext(ctx, `
		SELECT payload, generated_at, expires_at
		FROM report_sections
		WHERE repo_id = ? AND timeframe = ?
		  AND interval_start = ? AND interval_end = ?
		  AND section = ?
	`, key.RepoID, string(key.Timeframe), key.Interval.Start.Unix(),
		key.Interval.End.Unix(), string(section))

	var (
		payload     []byte
		generatedAt int64
		expiresAt   sql.NullInt64
	)
	err := row.Scan(&payload, &generatedAt, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return report.SectionRecord{}, report.ErrNotFound

	case err != nil:
		return report.SectionRecord{}, fmt.Errorf(
			"failed to read section record: %w", db.MapSQLError(err),
		)
	}

	// A payload that no longer decodes is handled as corruption so the
	// caller can fall back to regeneration instead of serving garbage.
	if !json.Valid(payload) {
		s.log.WarnContext(ctx, "Discarding corrupt section payload",
			"repo", key.RepoID, "section", section,
		)
		return report.SectionRecord{}, fmt.Errorf(
			"%w: %s/%s", report.ErrCacheCorruption,
			key.RepoID, section,
		)
	}

	rec := report.SectionRecord{
		Key:         key,
		Section:     section,
		Payload:     json.RawMessage(payload),
		GeneratedAt: time.Unix(generatedAt, 0).UTC(),
	}
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0).UTC()
		rec.ExpiresAt = &t
	}

	return rec, nil
}

// Put atomically stores the record for a (key, section) pair. The write is a
// single upsert statement, so concurrent readers either see the previous
// complete record or the new one, never a partial payload.
func (s *SQLStore) Put(ctx context.Context, key report.CacheKey,
	section report.Section,
	payload json.RawMessage) (report.SectionRecord, error) {

	now := s.clock().UTC().Truncate(time.Second)
	expiresAt := s.policy.ExpiresAt(section, now)

	var expiresVal sql.NullInt64
	if expiresAt != nil {
		expiresVal = sql.NullInt64{Int64: expiresAt.Unix(), Valid: true}
	}

	err := s.execWithRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO report_sections (
				repo_id, timeframe, interval_start,
				interval_end, section, payload,
				generated_at, expires_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (repo_id, timeframe, interval_start,
				interval_end, section)
			DO UPDATE SET
				payload = excluded.payload,
				generated_at = excluded.generated_at,
				expires_at = excluded.expires_at
		`, key.RepoID, string(key.Timeframe),
			key.Interval.Start.Unix(), key.Interval.End.Unix(),
			string(section), []byte(payload), now.Unix(),
			expiresVal)

		return err
	})
	if err != nil {
		return report.SectionRecord{}, fmt.Errorf(
			"failed to store section record: %w", err,
		)
	}

	return report.SectionRecord{
		Key:         key,
		Section:     section,
		Payload:     payload,
		GeneratedAt: now,
		ExpiresAt:   expiresAt,
	}, nil
}

// ListSections returns the stored sections for a repository and timeframe,
// most recently generated first. Backs the web layer's report index
// endpoint.
func (s *SQLStore) ListSections(ctx context.Context, repoID string,
	tf timeframe.Timeframe) ([]report.SectionRecord, error) {

	rows, err := s.db.QueryContext(ctx, `
		SELECT interval_start, interval_end, section, payload,
		       generated_at, expires_at
		FROM report_sections
		WHERE repo_id = ? AND timeframe = ?
		ORDER BY generated_at DESC, section ASC
	`, repoID, string(tf))
	if err != nil {
		return nil, fmt.Errorf("failed to list section records: %w",
			db.MapSQLError(err))
	}
	defer rows.Close()

	var records []report.SectionRecord
	for rows.Next() {
		var (
			start, end  int64
			section     string
			payload     []byte
			generatedAt int64
			expiresAt   sql.NullInt64
		)
		err := rows.Scan(
			&start, &end, &section, &payload, &generatedAt,
			&expiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf(
				"failed to scan section record: %w", err,
			)
		}

		rec := report.SectionRecord{
			Key: report.CacheKey{
				RepoID:    repoID,
				Timeframe: tf,
				Interval: timeframe.Interval{
					Start: time.Unix(start, 0).UTC(),
					End:   time.Unix(end, 0).UTC(),
				},
			},
			Section:     report.Section(section),
			Payload:     json.RawMessage(payload),
			GeneratedAt: time.Unix(generatedAt, 0).UTC(),
		}
		if expiresAt.Valid {
			t := time.Unix(expiresAt.Int64, 0).UTC()
			rec.ExpiresAt = &t
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(
			"error iterating section records: %w", err,
		)
	}

	return records, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// execWithRetry runs fn, retrying with randomized exponential backoff when
// the failure maps to a retryable serialization error.
func (s *SQLStore) execWithRetry(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt < s.numRetries; attempt++ {
		err := db.MapSQLError(fn())
		if err == nil {
			return nil
		}

		if !db.IsSerializationError(err) {
			return err
		}

		delay := s.randRetryDelay(attempt)
		s.log.DebugContext(ctx,
			"Retrying write due to serialization error",
			"attempt_number", attempt, "delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return db.ErrRetriesExceeded
}

// randRetryDelay returns a random retry delay between -50% and +50% of the
// configured delay that is doubled for each attempt and capped at a max
// value.
func (s *SQLStore) randRetryDelay(attempt int) time.Duration {
	halfDelay := s.initialRetryDelay / 2
	randDelay := prand.Int63n(int64(s.initialRetryDelay)) //nolint:gosec

	// 50% plus 0%-100% gives us the range of 50%-150%.
	initialDelay := halfDelay + time.Duration(randDelay)

	if attempt == 0 {
		return initialDelay
	}

	// Double the delay for each subsequent attempt, capped at the max.
	factor := time.Duration(math.Pow(2, math.Min(float64(attempt), 32)))
	actualDelay := initialDelay * factor //nolint:durationcheck

	if actualDelay > s.maxRetryDelay {
		return s.maxRetryDelay
	}

	return actualDelay
}

// Compile-time check that SQLStore satisfies SectionStore.
var _ SectionStore = (*SQLStore)(nil)
