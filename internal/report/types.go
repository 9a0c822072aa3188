// Package report defines the domain types shared across the engine: report
// sections, cache keys, stored section records, the GitHub item payload
// models, and the error taxonomy.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roasbeef/repodigest/internal/timeframe"
)

// Section identifies one independently cached slice of a report.
type Section string

const (
	// SectionPRs is the pull request activity section.
	SectionPRs Section = "prs"

	// SectionIssues is the issue activity section.
	SectionIssues Section = "issues"

	// SectionPeople is the contributor recognition section.
	SectionPeople Section = "people"

	// SectionSummary is the narrative summary section. It is derived
	// from the prs and issues sections and cannot be generated before
	// both are available.
	SectionSummary Section = "summary"
)

// Sections lists all sections in generation order: the summary depends on
// prs and issues and always comes last.
var Sections = []Section{
	SectionPRs, SectionIssues, SectionPeople, SectionSummary,
}

// ValidSection reports whether s names a known section.
func ValidSection(s Section) bool {
	switch s {
	case SectionPRs, SectionIssues, SectionPeople, SectionSummary:
		return true
	default:
		return false
	}
}

// CacheKey identifies one report window. Two requests that resolve to the
// same key are the same report, regardless of when within the day they were
// made. It is a comparable value type built per request, never persisted on
// its own.
type CacheKey struct {
	// RepoID is the owner/name slug of the repository.
	RepoID string

	// Timeframe is the symbolic window the key was resolved from.
	Timeframe timeframe.Timeframe

	// Interval is the concrete day-aligned window.
	Interval timeframe.Interval
}

// NewCacheKey resolves a timeframe at the given observation time and builds
// the cache key for it.
func NewCacheKey(repoID string, tf timeframe.Timeframe,
	now time.Time) (CacheKey, error) {

	interval, err := timeframe.Resolve(tf, now)
	if err != nil {
		return CacheKey{}, err
	}

	return CacheKey{
		RepoID:    repoID,
		Timeframe: tf,
		Interval:  interval,
	}, nil
}

// String returns a stable textual form of the key, used to key the in-flight
// registry and the mock store.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.RepoID, k.Timeframe, k.Interval)
}

// SectionRecord is one stored section payload with its cache metadata.
type SectionRecord struct {
	// Key is the report window the record belongs to.
	Key CacheKey

	// Section is which slice of the report this is.
	Section Section

	// Payload is the stored JSON document for the section.
	Payload json.RawMessage

	// GeneratedAt is when the payload was produced.
	GeneratedAt time.Time

	// ExpiresAt is when the record stops being valid, or nil if it never
	// expires. Historical sections carry nil; summaries carry a policy
	// driven expiry.
	ExpiresAt *time.Time
}

// Valid reports whether the record may be served at the given time.
func (r SectionRecord) Valid(now time.Time) bool {
	if r.ExpiresAt == nil {
		return true
	}

	return now.Before(*r.ExpiresAt)
}

// User is a GitHub account attached to an item.
type User struct {
	Login string `json:"login"`
	URL   string `json:"html_url,omitempty"`
	Type  string `json:"type,omitempty"`
}

// IsBot reports whether the account is an automation account rather than a
// person.
func (u User) IsBot() bool {
	return u.Type == "Bot"
}

// Item is one pull request or issue, scored and summarized.
type Item struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"html_url"`
	State  string `json:"state"`
	Body   string `json:"body,omitempty"`

	User User `json:"user"`

	// Association is the author's relationship to the repository, e.g.
	// OWNER, MEMBER, COLLABORATOR, CONTRIBUTOR.
	Association string `json:"author_association,omitempty"`

	Comments  int `json:"comments"`
	Reactions int `json:"reactions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`

	// IsPullRequest distinguishes PRs from issues in mixed lists.
	IsPullRequest bool `json:"is_pull_request"`

	// Summary is the model-written one-liner for the item, filled in
	// after fetching.
	Summary string `json:"summary,omitempty"`

	// Engagement is the computed attention score used for ordering.
	Engagement int `json:"engagement"`
}

// Contributor is one person's aggregated activity over the report window.
type Contributor struct {
	User User `json:"user"`

	// Digest is the model-written description of their work.
	Digest string `json:"digest,omitempty"`

	PRs    []Item `json:"prs,omitempty"`
	Issues []Item `json:"issues,omitempty"`

	// TotalItems is the combined count used for ranking.
	TotalItems int `json:"total_items"`
}

// SectionState is the lifecycle state of one section of a report request.
type SectionState string

const (
	// StateMissing means no valid cached record exists and no generation
	// is running.
	StateMissing SectionState = "missing"

	// StateGenerating means a generation is in flight.
	StateGenerating SectionState = "generating"

	// StateReady means a valid payload is available.
	StateReady SectionState = "ready"

	// StateFailed means the most recent generation failed. Failed
	// results are never cached, so the next request starts over from
	// missing.
	StateFailed SectionState = "failed"
)

// SectionResult is the outcome of requesting one section.
type SectionResult struct {
	Section Section `json:"section"`

	State SectionState `json:"state"`

	// Payload is set when State is ready.
	Payload json.RawMessage `json:"payload,omitempty"`

	// FromCache is true when the payload was served from a valid stored
	// record rather than generated for this request.
	FromCache bool `json:"cached"`

	// Err is set when State is failed.
	Err error `json:"-"`
}

// Report is the consumer-facing progressive view of a full report. Fields
// fill in independently as sections arrive; a nil field means the section
// has not completed yet.
type Report struct {
	RepoID    string              `json:"repo"`
	Timeframe timeframe.Timeframe `json:"timeframe"`

	PRs    []Item        `json:"prs,omitempty"`
	Issues []Item        `json:"issues,omitempty"`
	People []Contributor `json:"people,omitempty"`

	Summary *string `json:"summary,omitempty"`

	// Failed records the per-section failures, if any. A failure in one
	// section never blanks out the others.
	Failed map[Section]error `json:"-"`
}

// Complete reports whether every section has either arrived or failed.
func (r *Report) Complete() bool {
	done := func(section Section, present bool) bool {
		if present {
			return true
		}
		_, failed := r.Failed[section]
		return failed
	}

	return done(SectionPRs, r.PRs != nil) &&
		done(SectionIssues, r.Issues != nil) &&
		done(SectionPeople, r.People != nil) &&
		done(SectionSummary, r.Summary != nil)
}
