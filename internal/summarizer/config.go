package summarizer

import "time"

const (
	// DefaultModel is the OpenAI model used for summarization.
	DefaultModel = "gpt-4o-mini"

	// DefaultMaxConcurrent is the max simultaneous model calls when
	// summarizing item batches.
	DefaultMaxConcurrent = 4

	// DefaultRequestTimeout bounds a single non-streaming model call.
	DefaultRequestTimeout = 60 * time.Second
)

// Config holds configuration for the summarizer.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string

	// Model is the chat model to use.
	Model string

	// MaxConcurrent is the max simultaneous model calls.
	MaxConcurrent int

	// RequestTimeout bounds a single non-streaming call.
	RequestTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:          DefaultModel,
		MaxConcurrent:  DefaultMaxConcurrent,
		RequestTimeout: DefaultRequestTimeout,
	}
}
