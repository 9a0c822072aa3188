package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roasbeef/repodigest/internal/report"
	"github.com/roasbeef/repodigest/internal/timeframe"
)

// HTTPFetcher implements Fetcher against a running repodigest daemon.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher for the daemon at baseURL, e.g.
// "http://127.0.0.1:8418".
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: report generation is long-running and
		// bounded server-side; callers bound waits with their ctx.
		client: &http.Client{},
	}
}

func (f *HTTPFetcher) sectionURL(repoID string, tf timeframe.Timeframe,
	section report.Section, force bool) string {

	params := url.Values{"timeframe": {string(tf)}}
	if force {
		params.Set("force", "true")
	}

	return fmt.Sprintf("%s/api/v1/reports/%s/%s?%s",
		f.baseURL, repoID, section, params.Encode())
}

// FetchSection fetches one non-summary section as JSON.
func (f *HTTPFetcher) FetchSection(ctx context.Context, repoID string,
	tf timeframe.Timeframe, section report.Section,
	force bool) (json.RawMessage, bool, error) {

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodGet,
		f.sectionURL(repoID, tf, section, force), nil,
	)
	if err != nil {
		return nil, false, err
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, false, fmt.Errorf("section request failed: %w",
			err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, decodeError(resp)
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, false, fmt.Errorf(
			"failed to decode section response: %w", err,
		)
	}

	payload, ok := body[string(section)]
	if !ok {
		return nil, false, fmt.Errorf(
			"section %q missing from response", section,
		)
	}

	var cached bool
	if raw, ok := body["cached"]; ok {
		_ = json.Unmarshal(raw, &cached) //nolint:errcheck
	}

	return payload, cached, nil
}

// FetchSummary consumes the summary SSE stream, invoking sink per chunk,
// and returns the assembled text from the terminal done event.
func (f *HTTPFetcher) FetchSummary(ctx context.Context, repoID string,
	tf timeframe.Timeframe, force bool,
	sink func(chunk string)) (string, bool, error) {

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodGet,
		f.sectionURL(repoID, tf, report.SectionSummary, force), nil,
	)
	if err != nil {
		return "", false, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return "", false, fmt.Errorf("summary request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, decodeError(resp)
	}

	var (
		b      strings.Builder
		cached bool
		event  string
	)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")

		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")

			switch event {
			case "chunk":
				var chunk string
				if err := json.Unmarshal(
					[]byte(data), &chunk,
				); err != nil {
					continue
				}
				b.WriteString(chunk)
				if sink != nil {
					sink(chunk)
				}

			case "done":
				var done struct {
					Summary string `json:"summary"`
					Cached  bool   `json:"cached"`
				}
				if err := json.Unmarshal(
					[]byte(data), &done,
				); err == nil {
					cached = done.Cached
					return done.Summary, cached, nil
				}

			case "error":
				var msg string
				if err := json.Unmarshal(
					[]byte(data), &msg,
				); err != nil {
					msg = data
				}
				return b.String(), false, fmt.Errorf(
					"summary generation failed: %s", msg,
				)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return b.String(), false, fmt.Errorf(
			"summary stream interrupted: %w", err,
		)
	}

	// Stream ended without a terminal event; serve what arrived.
	return b.String(), cached, nil
}

// decodeError turns a non-200 daemon response into an error.
func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil &&
		body.Error != "" {

		return fmt.Errorf("daemon returned %d: %s",
			resp.StatusCode, body.Error)
	}

	return fmt.Errorf("daemon returned %d", resp.StatusCode)
}

// WaitHealthy polls the daemon's health endpoint until it answers or the
// deadline passes, for CLI startup.
func (f *HTTPFetcher) WaitHealthy(ctx context.Context,
	timeout time.Duration) error {

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodGet, f.baseURL+"/healthz", nil,
		)
		if err != nil {
			return err
		}

		resp, err := f.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("daemon not reachable: %w",
				ctx.Err())
		}
	}
}

// Compile-time check that HTTPFetcher satisfies Fetcher.
var _ Fetcher = (*HTTPFetcher)(nil)
