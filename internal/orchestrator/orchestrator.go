// Package orchestrator is the report engine's façade: it resolves requests
// to cache keys, serves valid stored sections, and coordinates generation of
// missing ones so that concurrent requests for the same window share a
// single generation.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roasbeef/repodigest/internal/flight"
	"github.com/roasbeef/repodigest/internal/report"
	"github.com/roasbeef/repodigest/internal/store"
	"github.com/roasbeef/repodigest/internal/summarizer"
	"github.com/roasbeef/repodigest/internal/timeframe"
)

// DefaultMaxPeople caps the contributor section size.
const DefaultMaxPeople = 5

// ActivitySource fetches repository activity. Satisfied by
// github.Fetcher.
type ActivitySource interface {
	// ListPullRequests returns ranked pull requests created in the
	// interval.
	ListPullRequests(ctx context.Context, repoID string,
		interval timeframe.Interval) ([]report.Item, error)

	// ListIssues returns ranked issues created in the interval.
	ListIssues(ctx context.Context, repoID string,
		interval timeframe.Interval) ([]report.Item, error)
}

// Request identifies one report window as a consumer names it.
type Request struct {
	// RepoID is the owner/name slug.
	RepoID string

	// Timeframe is the symbolic window.
	Timeframe timeframe.Timeframe

	// Force regenerates even when a valid cached record exists. The
	// fresh result overwrites the stored one.
	Force bool
}

// Config tunes the orchestrator.
type Config struct {
	// GenerationTimeout bounds one section generation.
	GenerationTimeout time.Duration

	// MaxPeople caps the contributor section size.
	MaxPeople int

	// MaxConcurrentSummaries bounds parallel per-item model calls
	// inside one section generation.
	MaxConcurrentSummaries int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		GenerationTimeout:      flight.DefaultGenerationTimeout,
		MaxPeople:              DefaultMaxPeople,
		MaxConcurrentSummaries: summarizer.DefaultMaxConcurrent,
	}
}

// Orchestrator coordinates the store, the fetcher and the summarizer into
// progressive section-cached reports.
type Orchestrator struct {
	cfg    Config
	store  store.SectionStore
	source ActivitySource
	model  summarizer.Summarizer
	log    *slog.Logger

	// clock is the injectable time source used to resolve timeframes.
	clock func() time.Time

	// flights dedupes section generations across concurrent requests.
	flights *flight.Group[json.RawMessage]

	// streams holds the live summary broadcast per flight key so late
	// callers replay the in-progress narration.
	streamMu sync.Mutex
	streams  map[string]*flight.TextStream
}

// Option is a functional option for New.
type Option func(*Orchestrator)

// WithClock overrides the orchestrator's time source.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// New creates an Orchestrator.
func New(cfg Config, sectionStore store.SectionStore, source ActivitySource,
	model summarizer.Summarizer, log *slog.Logger,
	opts ...Option) *Orchestrator {

	if log == nil {
		log = slog.Default()
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = flight.DefaultGenerationTimeout
	}
	if cfg.MaxPeople <= 0 {
		cfg.MaxPeople = DefaultMaxPeople
	}
	if cfg.MaxConcurrentSummaries <= 0 {
		cfg.MaxConcurrentSummaries = summarizer.DefaultMaxConcurrent
	}

	o := &Orchestrator{
		cfg:     cfg,
		store:   sectionStore,
		source:  source,
		model:   model,
		log:     log.With("component", "orchestrator"),
		clock:   time.Now,
		streams: make(map[string]*flight.TextStream),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.flights = flight.NewGroup[json.RawMessage](
		log, flight.WithTimeout[json.RawMessage](cfg.GenerationTimeout),
	)

	return o
}

// Key resolves the request to its cache key at the current time.
func (o *Orchestrator) Key(req Request) (report.CacheKey, error) {
	return report.NewCacheKey(req.RepoID, req.Timeframe, o.clock())
}

// flightKey names one (window, section) generation in the flight group.
func flightKey(key report.CacheKey, section report.Section) string {
	return key.String() + "|" + string(section)
}

// State reports the lifecycle state of one section for the request's
// window.
func (o *Orchestrator) State(ctx context.Context, req Request,
	section report.Section) (report.SectionState, error) {

	key, err := o.Key(req)
	if err != nil {
		return "", err
	}

	if o.flights.InFlight(flightKey(key, section)) {
		return report.StateGenerating, nil
	}

	rec, err := o.store.Get(ctx, key, section)
	switch {
	case errors.Is(err, report.ErrNotFound),
		errors.Is(err, report.ErrCacheCorruption):

		return report.StateMissing, nil

	case err != nil:
		return "", err
	}

	if !rec.Valid(o.clock()) {
		return report.StateMissing, nil
	}

	return report.StateReady, nil
}

// Section returns one section of the report, serving a valid cached payload
// when possible and otherwise joining or starting the single generation for
// the window. The summary section additionally requires the prs and issues
// sections to exist for the same window and fails fast with
// ErrDependencyUnavailable when they do not.
func (o *Orchestrator) Section(ctx context.Context, req Request,
	section report.Section) (report.SectionResult, error) {

	if !report.ValidSection(section) {
		return report.SectionResult{}, fmt.Errorf(
			"unknown section %q", section,
		)
	}

	key, err := o.Key(req)
	if err != nil {
		return report.SectionResult{}, err
	}

	if section == report.SectionSummary {
		return o.summarySection(ctx, req, key)
	}

	if !req.Force {
		if rec, ok := o.cachedRecord(ctx, key, section); ok {
			return report.SectionResult{
				Section:   section,
				State:     report.StateReady,
				Payload:   rec.Payload,
				FromCache: true,
			}, nil
		}
	}

	payload, _, err := o.flights.Do(
		ctx, flightKey(key, section),
		func(genCtx context.Context) (json.RawMessage, error) {
			return o.generate(genCtx, key, section)
		},
	)
	if err != nil {
		return report.SectionResult{
			Section: section,
			State:   report.StateFailed,
			Err:     err,
		}, err
	}

	return report.SectionResult{
		Section: section,
		State:   report.StateReady,
		Payload: payload,
	}, nil
}

// cachedRecord reads a record and reports whether it can be served as-is.
// Corruption is logged and treated as a miss so the section regenerates.
func (o *Orchestrator) cachedRecord(ctx context.Context,
	key report.CacheKey,
	section report.Section) (report.SectionRecord, bool) {

	rec, err := o.store.Get(ctx, key, section)
	switch {
	case errors.Is(err, report.ErrNotFound):
		return report.SectionRecord{}, false

	case errors.Is(err, report.ErrCacheCorruption):
		o.log.WarnContext(ctx, "Regenerating corrupt section",
			"repo", key.RepoID, "section", section,
		)
		return report.SectionRecord{}, false

	case err != nil:
		o.log.ErrorContext(ctx, "Section read failed, regenerating",
			"repo", key.RepoID, "section", section, "err", err,
		)
		return report.SectionRecord{}, false
	}

	if !rec.Valid(o.clock()) {
		return report.SectionRecord{}, false
	}

	return rec, true
}

// storedRecord reads a record ignoring its expiry, for dependency reads:
// a stale summary input is still a usable input.
func (o *Orchestrator) storedRecord(ctx context.Context,
	key report.CacheKey,
	section report.Section) (report.SectionRecord, error) {

	rec, err := o.store.Get(ctx, key, section)
	if err != nil {
		return report.SectionRecord{}, err
	}

	return rec, nil
}

// generate runs the generator for a non-summary section and stores the
// result. Failures are never stored.
func (o *Orchestrator) generate(ctx context.Context, key report.CacheKey,
	section report.Section) (json.RawMessage, error) {

	start := time.Now()

	var (
		payload json.RawMessage
		err     error
	)
	switch section {
	case report.SectionPRs:
		payload, err = o.generatePRs(ctx, key)
	case report.SectionIssues:
		payload, err = o.generateIssues(ctx, key)
	case report.SectionPeople:
		payload, err = o.generatePeople(ctx, key)
	default:
		return nil, fmt.Errorf("no generator for section %q", section)
	}
	if err != nil {
		return nil, err
	}

	if _, err := o.store.Put(ctx, key, section, payload); err != nil {
		// The payload is good even if persisting it was not; serve
		// it and let a later request regenerate.
		o.log.ErrorContext(ctx, "Failed to persist section",
			"repo", key.RepoID, "section", section, "err", err,
		)
	}

	o.log.InfoContext(ctx, "Generated section",
		"repo", key.RepoID, "section", section,
		"elapsed", time.Since(start),
	)

	return payload, nil
}
