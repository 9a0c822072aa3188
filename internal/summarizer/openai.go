package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/roasbeef/repodigest/internal/report"
)

// OpenAISummarizer implements Summarizer over the OpenAI chat completions
// API.
type OpenAISummarizer struct {
	cfg    Config
	client *openai.Client
	log    *slog.Logger

	// sem limits concurrent model calls across all entry points.
	sem chan struct{}
}

// NewOpenAISummarizer creates a summarizer backed by OpenAI.
func NewOpenAISummarizer(cfg Config, log *slog.Logger) *OpenAISummarizer {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	return &OpenAISummarizer{
		cfg:    cfg,
		client: openai.NewClient(cfg.APIKey),
		log:    log.With("component", "summarizer"),
		sem:    make(chan struct{}, cfg.MaxConcurrent),
	}
}

// acquire takes a semaphore slot, honoring ctx.
func (s *OpenAISummarizer) acquire(ctx context.Context) (func(), error) {
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// complete runs one non-streaming chat completion.
func (s *OpenAISummarizer) complete(ctx context.Context, system,
	user string) (string, error) {

	release, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(
		ctx, openai.ChatCompletionRequest{
			Model: s.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: system,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: user,
				},
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// SummarizeItem writes a one-line summary for a single PR or issue. The
// model sees the title and body as a small JSON document.
func (s *OpenAISummarizer) SummarizeItem(ctx context.Context,
	item report.Item) (string, error) {

	payload, err := json.Marshal(map[string]string{
		"title": item.Title,
		"body":  item.Body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode item context: %w", err)
	}

	summary, err := s.complete(ctx, promptItem, string(payload))
	if err != nil {
		s.log.WarnContext(ctx, "Item summarization failed",
			"item", item.Number, "err", err,
		)
		return "", err
	}

	return summary, nil
}

// SummarizeContributor writes a short digest of one contributor's items.
func (s *OpenAISummarizer) SummarizeContributor(ctx context.Context,
	c report.Contributor) (string, error) {

	input := contributorInput(c)
	if input == "" {
		return "", nil
	}

	return s.complete(ctx, promptContributor, input)
}

// Narrate streams the narrative summary, feeding each content delta to
// sink as it arrives.
func (s *OpenAISummarizer) Narrate(ctx context.Context, prs,
	issues []report.Item, sink func(chunk string)) error {

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	stream, err := s.client.CreateChatCompletionStream(
		ctx, openai.ChatCompletionRequest{
			Model: s.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: promptNarrative,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: NarrativeInput(prs, issues),
				},
			},
			Stream: true,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to open completion stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("completion stream failed: %w", err)
		}

		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			sink(delta)
		}
	}
}

// Compile-time check that OpenAISummarizer satisfies Summarizer.
var _ Summarizer = (*OpenAISummarizer)(nil)
