package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roasbeef/repodigest/internal/flight"
	"github.com/roasbeef/repodigest/internal/github"
	"github.com/roasbeef/repodigest/internal/report"
	"github.com/roasbeef/repodigest/internal/summarizer"
)

// generateItems fetches, ranks and summarizes one item section. Item-level
// summarization failures degrade to empty summaries rather than failing the
// section.
func (o *Orchestrator) generateItems(ctx context.Context,
	key report.CacheKey, section report.Section,
	fetch func(context.Context) ([]report.Item, error)) (json.RawMessage,
	error) {

	items, err := fetch(ctx)
	if err != nil {
		return nil, report.NewUpstreamError("github", section, err)
	}

	items, err = summarizer.SummarizeItems(
		ctx, o.model, items, o.cfg.MaxConcurrentSummaries,
	)
	if err != nil {
		o.log.WarnContext(ctx, "Item summarization degraded",
			"repo", key.RepoID, "section", section, "err", err,
		)
	}

	return marshalPayload(items)
}

func (o *Orchestrator) generatePRs(ctx context.Context,
	key report.CacheKey) (json.RawMessage, error) {

	return o.generateItems(
		ctx, key, report.SectionPRs,
		func(ctx context.Context) ([]report.Item, error) {
			return o.source.ListPullRequests(
				ctx, key.RepoID, key.Interval,
			)
		},
	)
}

func (o *Orchestrator) generateIssues(ctx context.Context,
	key report.CacheKey) (json.RawMessage, error) {

	return o.generateItems(
		ctx, key, report.SectionIssues,
		func(ctx context.Context) ([]report.Item, error) {
			return o.source.ListIssues(
				ctx, key.RepoID, key.Interval,
			)
		},
	)
}

// generatePeople builds the contributor section. It reuses stored prs and
// issues when they exist so the grouping reflects the same items the report
// shows, and fetches fresh activity otherwise; the section has no hard
// dependency on its siblings.
func (o *Orchestrator) generatePeople(ctx context.Context,
	key report.CacheKey) (json.RawMessage, error) {

	loadOrFetch := func(section report.Section,
		fetch func(context.Context) ([]report.Item,
			error)) ([]report.Item, error) {

		rec, err := o.storedRecord(ctx, key, section)
		if err == nil {
			var items []report.Item
			if err := json.Unmarshal(
				rec.Payload, &items,
			); err == nil {
				return items, nil
			}
		} else if !errors.Is(err, report.ErrNotFound) &&
			!errors.Is(err, report.ErrCacheCorruption) {

			return nil, err
		}

		items, err := fetch(ctx)
		if err != nil {
			return nil, report.NewUpstreamError(
				"github", report.SectionPeople, err,
			)
		}

		return items, nil
	}

	prs, err := loadOrFetch(
		report.SectionPRs,
		func(ctx context.Context) ([]report.Item, error) {
			return o.source.ListPullRequests(
				ctx, key.RepoID, key.Interval,
			)
		},
	)
	if err != nil {
		return nil, err
	}

	issues, err := loadOrFetch(
		report.SectionIssues,
		func(ctx context.Context) ([]report.Item, error) {
			return o.source.ListIssues(
				ctx, key.RepoID, key.Interval,
			)
		},
	)
	if err != nil {
		return nil, err
	}

	people := github.GroupContributors(prs, issues, o.cfg.MaxPeople)

	// Per-contributor digests are a nicety: a model failure leaves the
	// digest empty instead of failing the section.
	for i := range people {
		digest, err := o.model.SummarizeContributor(ctx, people[i])
		if err != nil {
			o.log.WarnContext(ctx, "Contributor digest degraded",
				"repo", key.RepoID,
				"login", people[i].User.Login, "err", err,
			)
			continue
		}
		people[i].Digest = digest
	}

	return marshalPayload(people)
}

// generateSummary narrates the window from its prs and issues, appending
// each chunk to the stream as it arrives. The stored payload is the full
// text as a JSON string.
func (o *Orchestrator) generateSummary(ctx context.Context,
	key report.CacheKey, prs, issues []report.Item,
	stream *flight.TextStream) (json.RawMessage, error) {

	err := o.model.Narrate(ctx, prs, issues, stream.Append)
	if err != nil {
		return nil, report.NewUpstreamError(
			"summarizer", report.SectionSummary, err,
		)
	}

	payload, err := json.Marshal(stream.Text())
	if err != nil {
		return nil, err
	}

	if _, err := o.store.Put(
		ctx, key, report.SectionSummary, payload,
	); err != nil {
		o.log.ErrorContext(ctx, "Failed to persist summary",
			"repo", key.RepoID, "err", err,
		)
	}

	return payload, nil
}

// marshalPayload encodes a section payload, normalizing nil slices to
// empty JSON arrays so consumers can distinguish "no items" from "not yet
// generated".
func marshalPayload(v any) (json.RawMessage, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode section: %w", err)
	}
	if string(payload) == "null" {
		payload = json.RawMessage(`[]`)
	}

	return payload, nil
}
