package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/roasbeef/repodigest/internal/github"
	"github.com/roasbeef/repodigest/internal/orchestrator"
	"github.com/roasbeef/repodigest/internal/report"
	"github.com/roasbeef/repodigest/internal/timeframe"
)

// parseRequest extracts the report request from the URL.
func parseRequest(r *http.Request) (orchestrator.Request, error) {
	label := r.URL.Query().Get("timeframe")
	if label == "" {
		label = string(timeframe.LastWeek)
	}

	tf, err := timeframe.Parse(label)
	if err != nil {
		return orchestrator.Request{}, err
	}

	return orchestrator.Request{
		RepoID: fmt.Sprintf(
			"%s/%s", r.PathValue("owner"), r.PathValue("repo"),
		),
		Timeframe: tf,
		Force:     r.URL.Query().Get("force") == "true",
	}, nil
}

// writeJSON writes a JSON response body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Failed to encode response", "err", err)
	}
}

// writeError maps engine errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, timeframe.ErrInvalidTimeframe):
		status = http.StatusBadRequest

	case errors.Is(err, report.ErrDependencyUnavailable):
		status = http.StatusConflict

	case errors.Is(err, report.ErrGenerationTimeout):
		status = http.StatusGatewayTimeout

	case errors.Is(err, github.ErrRateLimited):
		status = http.StatusTooManyRequests

	case errors.Is(err, github.ErrAccessDenied):
		status = http.StatusNotFound

	case report.IsUpstreamFailure(err):
		status = http.StatusBadGateway
	}

	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleSection serves one JSON report section.
func (s *Server) handleSection(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	section := report.Section(r.PathValue("section"))
	if !report.ValidSection(section) {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown section %q", section),
		})
		return
	}

	res, err := s.orch.Section(r.Context(), req, section)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		string(section): json.RawMessage(res.Payload),
		"cached":        res.FromCache,
	})
}

// indexEntry is one stored section in the report index, payload omitted.
type indexEntry struct {
	Section     report.Section `json:"section"`
	GeneratedAt time.Time      `json:"generated_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Stale       bool           `json:"stale"`
}

// handleIndex lists the stored sections for a repository and timeframe
// without triggering any generation.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	records, err := s.store.ListSections(
		r.Context(), req.RepoID, req.Timeframe,
	)
	if err != nil {
		s.writeError(w, err)
		return
	}

	now := time.Now()
	entries := make([]indexEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, indexEntry{
			Section:     rec.Section,
			GeneratedAt: rec.GeneratedAt,
			ExpiresAt:   rec.ExpiresAt,
			Stale:       !rec.Valid(now),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"repo":      req.RepoID,
		"timeframe": req.Timeframe,
		"sections":  entries,
	})
}

// handleSummarySSE streams the narrative summary as server-sent events:
// chunk events carrying text deltas, then one done event, or an error event
// on failure.
func (s *Server) handleSummarySSE(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(
			w, "SSE not supported",
			http.StatusInternalServerError,
		)
		return
	}

	stream, err := s.orch.StreamSummary(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	streamID := uuid.NewString()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Stream-Id", streamID)

	// Disable the write deadline for the long-lived connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.log.Debug("Failed to disable write deadline", "err", err)
	}

	ctx := r.Context()
	for chunk := range stream.Text.Subscribe(ctx) {
		payload, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: chunk\ndata: %s\n\n", payload)
		flusher.Flush()
	}

	if ctx.Err() != nil {
		// The client went away; the generation keeps running for any
		// other subscriber.
		return
	}

	if err := stream.Text.Err(); err != nil {
		fmt.Fprintf(w, "event: error\ndata: %q\n\n", err.Error())
		flusher.Flush()
		return
	}

	done, err := json.Marshal(map[string]any{
		"summary": stream.Text.Text(),
		"cached":  stream.FromCache,
	})
	if err == nil {
		fmt.Fprintf(w, "event: done\ndata: %s\n\n", done)
		flusher.Flush()
	}
}

// handleSummaryHTML renders the stored summary as HTML. It serves whatever
// summary text is on record, stale or not, and never triggers generation.
func (s *Server) handleSummaryHTML(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	key, err := s.orch.Key(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	rec, err := s.store.Get(r.Context(), key, report.SectionSummary)
	if errors.Is(err, report.ErrNotFound) ||
		errors.Is(err, report.ErrCacheCorruption) {

		http.Error(w, "no summary on record", http.StatusNotFound)
		return
	} else if err != nil {
		s.writeError(w, err)
		return
	}

	var text string
	if err := json.Unmarshal(rec.Payload, &text); err != nil {
		http.Error(w, "no summary on record", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes()) //nolint:errcheck
}

// handleHealthz reports liveness and verifies the store answers.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	key, err := report.NewCacheKey(
		"healthz/probe", timeframe.LastDay, time.Now(),
	)
	if err == nil {
		_, err = s.store.Get(ctx, key, report.SectionPRs)
		if errors.Is(err, report.ErrNotFound) {
			err = nil
		}
	}
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded", "error": err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
