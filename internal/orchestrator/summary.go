package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roasbeef/repodigest/internal/flight"
	"github.com/roasbeef/repodigest/internal/report"
)

// SummaryStream is a live or replayed summary narration.
type SummaryStream struct {
	// Text is the underlying broadcast; subscribe to it for chunks.
	Text *flight.TextStream

	// FromCache is true when the narration replays a stored summary
	// rather than a live generation.
	FromCache bool
}

// summaryDeps loads the prs and issues payloads the summary is derived
// from, ignoring expiry. Both must exist; a missing one fails fast with
// ErrDependencyUnavailable.
func (o *Orchestrator) summaryDeps(ctx context.Context,
	key report.CacheKey) (prs, issues []report.Item, err error) {

	load := func(section report.Section) ([]report.Item, error) {
		rec, err := o.storedRecord(ctx, key, section)
		switch {
		case errors.Is(err, report.ErrNotFound),
			errors.Is(err, report.ErrCacheCorruption):

			return nil, fmt.Errorf("%w: %s section missing",
				report.ErrDependencyUnavailable, section)

		case err != nil:
			return nil, err
		}

		var items []report.Item
		if err := json.Unmarshal(rec.Payload, &items); err != nil {
			return nil, fmt.Errorf("%w: %s section undecodable",
				report.ErrDependencyUnavailable, section)
		}

		return items, nil
	}

	if prs, err = load(report.SectionPRs); err != nil {
		return nil, nil, err
	}
	if issues, err = load(report.SectionIssues); err != nil {
		return nil, nil, err
	}

	return prs, issues, nil
}

// StreamSummary returns the summary narration for the request's window. A
// valid cached summary is replayed unless forced; otherwise the caller
// joins the in-flight narration or starts one. The returned stream always
// terminates, with chunks in generation order.
func (o *Orchestrator) StreamSummary(ctx context.Context,
	req Request) (*SummaryStream, error) {

	key, err := o.Key(req)
	if err != nil {
		return nil, err
	}

	// The dependency gate comes first: without stored prs and issues
	// there is nothing to narrate, cached or not.
	prs, issues, err := o.summaryDeps(ctx, key)
	if err != nil {
		return nil, err
	}

	if !req.Force {
		rec, ok := o.cachedRecord(ctx, key, report.SectionSummary)
		if ok {
			var text string
			if err := json.Unmarshal(
				rec.Payload, &text,
			); err == nil {
				s := flight.NewTextStream()
				s.Append(text)
				s.Finish(nil)

				return &SummaryStream{
					Text:      s,
					FromCache: true,
				}, nil
			}
		}
	}

	fk := flightKey(key, report.SectionSummary)

	o.streamMu.Lock()
	if s, ok := o.streams[fk]; ok {
		o.streamMu.Unlock()
		return &SummaryStream{Text: s}, nil
	}

	s := flight.NewTextStream()
	o.streams[fk] = s
	o.streamMu.Unlock()

	// The generation is detached from this caller: the flight group
	// runs it to completion even if every subscriber walks away, and
	// the stream finishes only when the generation does.
	waitCtx := context.WithoutCancel(ctx)
	go func() {
		_, _, err := o.flights.Do(
			waitCtx, fk,
			func(genCtx context.Context) (json.RawMessage, error) {
				return o.generateSummary(
					genCtx, key, prs, issues, s,
				)
			},
		)

		o.streamMu.Lock()
		delete(o.streams, fk)
		o.streamMu.Unlock()

		s.Finish(err)
	}()

	return &SummaryStream{Text: s}, nil
}

// summarySection is the non-streaming summary path: it drains the stream
// and returns the full text as the section payload.
func (o *Orchestrator) summarySection(ctx context.Context, req Request,
	key report.CacheKey) (report.SectionResult, error) {

	stream, err := o.StreamSummary(ctx, req)
	if err != nil {
		return report.SectionResult{
			Section: report.SectionSummary,
			State:   report.StateFailed,
			Err:     err,
		}, err
	}

	text, err := stream.Text.Collect(ctx)
	if err != nil {
		return report.SectionResult{
			Section: report.SectionSummary,
			State:   report.StateFailed,
			Err:     err,
		}, err
	}

	payload, err := json.Marshal(text)
	if err != nil {
		return report.SectionResult{}, err
	}

	return report.SectionResult{
		Section:   report.SectionSummary,
		State:     report.StateReady,
		Payload:   payload,
		FromCache: stream.FromCache,
	}, nil
}
