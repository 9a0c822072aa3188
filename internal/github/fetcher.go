package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/cli/go-gh/v2/pkg/api"
	"github.com/codeGROOVE-dev/retry"

	"github.com/roasbeef/repodigest/internal/report"
	"github.com/roasbeef/repodigest/internal/timeframe"
)

const (
	// DefaultMaxItems is how many items a section keeps after ranking.
	DefaultMaxItems = 10

	// searchPageSize is the page size requested from the search API.
	searchPageSize = 100

	// Retry tuning for transient API failures. Rate-limit and
	// access-denied responses are never retried.
	maxRetryAttempts  = 3
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
)

var (
	// ErrRateLimited is returned when GitHub rejects a request for
	// quota reasons. It is surfaced immediately rather than retried.
	ErrRateLimited = errors.New("github rate limit exceeded")

	// ErrAccessDenied is returned when the repository does not exist or
	// the token cannot see it.
	ErrAccessDenied = errors.New("github repository access denied")
)

// Fetcher retrieves repository activity over the GitHub search API.
type Fetcher struct {
	rest *api.RESTClient
	log  *slog.Logger

	maxItems int
}

// FetcherOption is a functional option for NewFetcher.
type FetcherOption func(*Fetcher)

// WithMaxItems overrides how many items each listing keeps.
func WithMaxItems(n int) FetcherOption {
	return func(f *Fetcher) {
		f.maxItems = n
	}
}

// NewFetcher creates a Fetcher. An empty token falls back to go-gh's
// ambient auth (gh CLI config or GITHUB_TOKEN).
func NewFetcher(token string, log *slog.Logger,
	opts ...FetcherOption) (*Fetcher, error) {

	if log == nil {
		log = slog.Default()
	}

	rest, err := api.NewRESTClient(api.ClientOptions{
		AuthToken: token,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create github client: %w",
			err)
	}

	f := &Fetcher{
		rest:     rest,
		log:      log.With("component", "github"),
		maxItems: DefaultMaxItems,
	}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// ListPullRequests returns the most engaging pull requests created in the
// interval, scored and sorted, bots removed.
func (f *Fetcher) ListPullRequests(ctx context.Context, repoID string,
	interval timeframe.Interval) ([]report.Item, error) {

	return f.listActivity(ctx, repoID, TypePR, interval)
}

// ListIssues returns the most engaging issues created in the interval,
// scored and sorted, bots removed.
func (f *Fetcher) ListIssues(ctx context.Context, repoID string,
	interval timeframe.Interval) ([]report.Item, error) {

	return f.listActivity(ctx, repoID, TypeIssue, interval)
}

func (f *Fetcher) listActivity(ctx context.Context, repoID string,
	itemType ItemType,
	interval timeframe.Interval) ([]report.Item, error) {

	query := SearchQuery{
		RepoID:  repoID,
		Type:    itemType,
		State:   "all",
		Created: &interval,
		Extra:   []string{"sort:comments-desc"},
	}.Build()

	f.log.DebugContext(ctx, "Searching github activity",
		"repo", repoID, "type", itemType, "query", query,
	)

	items, err := f.search(ctx, query)
	if err != nil {
		return nil, err
	}

	ranked := RankItems(items, f.maxItems)

	f.log.InfoContext(ctx, "Fetched github activity",
		"repo", repoID, "type", itemType,
		"fetched", len(items), "kept", len(ranked),
	)

	return ranked, nil
}

// searchResponse is the shape of the search/issues endpoint response.
type searchResponse struct {
	TotalCount        int          `json:"total_count"`
	IncompleteResults bool         `json:"incomplete_results"`
	Items             []searchItem `json:"items"`
}

// searchItem is one item as returned by the search API.
type searchItem struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"html_url"`
	State  string `json:"state"`
	Body   string `json:"body"`

	User struct {
		Login string `json:"login"`
		URL   string `json:"html_url"`
		Type  string `json:"type"`
	} `json:"user"`

	Association string `json:"author_association"`
	Comments    int    `json:"comments"`

	Reactions struct {
		TotalCount int `json:"total_count"`
	} `json:"reactions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// PullRequest is present only for PRs in the mixed issue search
	// results.
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request"`
}

// search runs one search query with bounded retry on transient failures.
func (f *Fetcher) search(ctx context.Context,
	query string) ([]report.Item, error) {

	endpoint := fmt.Sprintf("search/issues?q=%s&per_page=%d",
		url.QueryEscape(query), searchPageSize)

	var resp searchResponse
	err := retry.Do(
		func() error {
			resp = searchResponse{}
			err := f.rest.DoWithContext(
				ctx, "GET", endpoint, nil, &resp,
			)
			if err != nil {
				return classifyAPIError(err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(maxRetryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(initialRetryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			f.log.WarnContext(ctx, "Retrying github search",
				"attempt", n+1, "err", err,
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("github search failed: %w", err)
	}

	items := make([]report.Item, 0, len(resp.Items))
	for _, raw := range resp.Items {
		items = append(items, report.Item{
			Number: raw.Number,
			Title:  raw.Title,
			URL:    raw.URL,
			State:  raw.State,
			Body:   raw.Body,
			User: report.User{
				Login: raw.User.Login,
				URL:   raw.User.URL,
				Type:  raw.User.Type,
			},
			Association:   raw.Association,
			Comments:      raw.Comments,
			Reactions:     raw.Reactions.TotalCount,
			CreatedAt:     raw.CreatedAt,
			UpdatedAt:     raw.UpdatedAt,
			IsPullRequest: raw.PullRequest != nil,
		})
	}

	return items, nil
}

// classifyAPIError maps GitHub HTTP failures to the package's sentinels.
// Rate-limit and access failures are wrapped as unrecoverable so the retry
// loop stops instead of hammering a throttled or forbidden endpoint.
func classifyAPIError(err error) error {
	var httpErr *api.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}

	switch httpErr.StatusCode {
	case 403, 429:
		return retry.Unrecoverable(fmt.Errorf(
			"%w: %s", ErrRateLimited, httpErr.Message,
		))

	case 401, 404:
		return retry.Unrecoverable(fmt.Errorf(
			"%w: %s", ErrAccessDenied, httpErr.Message,
		))

	default:
		return err
	}
}
