// Package client is the consumer-side request manager: it fans one report
// request out into parallel section fetches, merges results into a
// progressive Report view, and dedupes identical outstanding requests so a
// burst of UI refreshes costs one round of fetches.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roasbeef/repodigest/internal/report"
	"github.com/roasbeef/repodigest/internal/timeframe"
)

// Fetcher retrieves report sections from the daemon.
type Fetcher interface {
	// FetchSection fetches one non-summary section, reporting whether
	// it was served from cache.
	FetchSection(ctx context.Context, repoID string,
		tf timeframe.Timeframe, section report.Section,
		force bool) (json.RawMessage, bool, error)

	// FetchSummary fetches the summary, invoking sink per streamed
	// chunk, and returns the full text. sink may be nil.
	FetchSummary(ctx context.Context, repoID string,
		tf timeframe.Timeframe, force bool,
		sink func(chunk string)) (string, bool, error)
}

// Subscription is one listener on an outstanding report request. Updates
// delivers view snapshots as sections arrive; the channel closes once the
// report is complete or the subscription is cancelled.
type Subscription struct {
	// ID identifies the subscription.
	ID string

	// Updates delivers progressive view snapshots in arrival order.
	// Each snapshot only ever adds to the previous one: a section
	// transitions nil to value at most once per request.
	Updates <-chan report.Report

	updates chan report.Report
	job     *job
}

// Cancel detaches the subscription. The underlying fetches continue for any
// other listener; once the last listener leaves they are cancelled.
func (s *Subscription) Cancel() {
	s.job.detach(s)
}

// job is one deduped in-flight report request shared by its subscribers.
type job struct {
	signature string

	mu     sync.Mutex
	view   report.Report
	subs   map[string]*Subscription
	done   bool
	stale  bool
	cancel context.CancelFunc
}

// snapshot copies the view for delivery, cloning the Failed map so later
// merges do not race with a consumer reading an older snapshot.
func (j *job) snapshot() report.Report {
	view := j.view
	view.Failed = make(map[report.Section]error, len(j.view.Failed))
	for section, err := range j.view.Failed {
		view.Failed[section] = err
	}

	return view
}

// Manager coordinates report requests for one consumer, e.g. a TUI view.
// Requesting a new signature releases the listener on the previous one;
// requesting the same signature joins it.
type Manager struct {
	fetcher Fetcher
	log     *slog.Logger

	mu   sync.Mutex
	jobs map[string]*job

	// current is the consumer's latest subscription, released when a
	// request with a different signature supersedes it.
	current *Subscription
}

// NewManager creates a Manager.
func NewManager(fetcher Fetcher, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		fetcher: fetcher,
		log:     log.With("component", "client"),
		jobs:    make(map[string]*job),
	}
}

func signature(repoID string, tf timeframe.Timeframe, force bool) string {
	return fmt.Sprintf("%s|%s|%t", repoID, tf, force)
}

// Request subscribes to the report for (repoID, tf). An identical
// outstanding request is joined instead of duplicated; a request with a
// different signature cancels the consumer's previous subscription. When
// that leaves the stale signature with no listeners, its fetches are
// cancelled too; listeners sharing the job keep it alive.
func (m *Manager) Request(repoID string, tf timeframe.Timeframe,
	force bool) (*Subscription, error) {

	if _, err := timeframe.Parse(string(tf)); err != nil {
		return nil, err
	}

	sig := signature(repoID, tf, force)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.job.signature != sig {
		m.current.job.detach(m.current)
	}

	j, ok := m.jobs[sig]
	if ok && j.isStale() {
		delete(m.jobs, sig)
		ok = false
	}
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		j = &job{
			signature: sig,
			view: report.Report{
				RepoID:    repoID,
				Timeframe: tf,
				Failed:    make(map[report.Section]error),
			},
			subs:   make(map[string]*Subscription),
			cancel: cancel,
		}
		m.jobs[sig] = j

		go m.run(ctx, j, repoID, tf, force)
	}

	sub := j.attach()
	m.current = sub

	return sub, nil
}

// attach adds a listener, replaying the snapshot so far.
func (j *job) attach() *Subscription {
	j.mu.Lock()
	defer j.mu.Unlock()

	updates := make(chan report.Report, 8)
	sub := &Subscription{
		ID:      uuid.NewString(),
		Updates: updates,
		updates: updates,
		job:     j,
	}

	if j.done {
		updates <- j.snapshot()
		close(updates)
		return sub
	}

	j.subs[sub.ID] = sub
	return sub
}

// detach removes a listener. When the last listener leaves an unfinished
// job the job goes stale: its fetch context is cancelled so no network
// listening outlives its consumers. Server-side generation is unaffected,
// the daemon runs it on a detached context.
func (j *job) detach(sub *Subscription) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.subs[sub.ID]; !ok {
		return
	}

	delete(j.subs, sub.ID)
	close(sub.updates)

	if len(j.subs) == 0 && !j.done {
		j.stale = true
		j.cancel()
	}
}

// isStale reports whether the job's fetches were cancelled before it
// completed.
func (j *job) isStale() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.stale
}

// broadcast delivers the current snapshot to every listener. Sends never
// block: a slow listener misses intermediate snapshots but still gets the
// final one from finish.
func (j *job) broadcast() {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := j.snapshot()
	for _, sub := range j.subs {
		select {
		case sub.updates <- snap:
		default:
		}
	}
}

// finish marks the job complete and closes every listener.
func (j *job) finish() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.done = true
	snap := j.snapshot()
	for id, sub := range j.subs {
		select {
		case sub.updates <- snap:
		default:
		}
		close(sub.updates)
		delete(j.subs, id)
	}
}

// run performs the fetch fan-out for one job: the three independent
// sections in parallel, then the summary once prs and issues are in.
func (m *Manager) run(ctx context.Context, j *job, repoID string,
	tf timeframe.Timeframe, force bool) {

	defer func() {
		j.finish()
		j.cancel()

		// A stale job may already have been replaced under its
		// signature; only remove our own registration.
		m.mu.Lock()
		if m.jobs[j.signature] == j {
			delete(m.jobs, j.signature)
		}
		m.mu.Unlock()
	}()

	var wg sync.WaitGroup
	for _, section := range []report.Section{
		report.SectionPRs, report.SectionIssues, report.SectionPeople,
	} {
		wg.Add(1)
		go func(section report.Section) {
			defer wg.Done()

			payload, _, err := m.fetcher.FetchSection(
				ctx, repoID, tf, section, force,
			)

			j.mu.Lock()
			if err != nil {
				j.view.Failed[section] = err
			} else {
				mergeSection(&j.view, section, payload)
			}
			j.mu.Unlock()

			j.broadcast()
		}(section)
	}
	wg.Wait()

	j.mu.Lock()
	_, prsFailed := j.view.Failed[report.SectionPRs]
	_, issuesFailed := j.view.Failed[report.SectionIssues]
	j.mu.Unlock()

	if prsFailed || issuesFailed {
		j.mu.Lock()
		j.view.Failed[report.SectionSummary] =
			report.ErrDependencyUnavailable
		j.mu.Unlock()
		return
	}

	text, _, err := m.fetcher.FetchSummary(ctx, repoID, tf, force, nil)

	j.mu.Lock()
	if err != nil {
		j.view.Failed[report.SectionSummary] = err
	} else {
		j.view.Summary = &text
	}
	j.mu.Unlock()
}

// mergeSection decodes one section payload into its slot. Callers hold the
// job lock. A slot only transitions nil to value; later arrivals for the
// same section never happen within one job.
func mergeSection(view *report.Report, section report.Section,
	payload json.RawMessage) {

	switch section {
	case report.SectionPRs:
		var items []report.Item
		if err := json.Unmarshal(payload, &items); err == nil {
			if items == nil {
				items = []report.Item{}
			}
			view.PRs = items
		}

	case report.SectionIssues:
		var items []report.Item
		if err := json.Unmarshal(payload, &items); err == nil {
			if items == nil {
				items = []report.Item{}
			}
			view.Issues = items
		}

	case report.SectionPeople:
		var people []report.Contributor
		if err := json.Unmarshal(payload, &people); err == nil {
			if people == nil {
				people = []report.Contributor{}
			}
			view.People = people
		}
	}
}
