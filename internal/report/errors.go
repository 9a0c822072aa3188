package report

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by the store when no record exists for a
	// (key, section) pair.
	ErrNotFound = errors.New("section record not found")

	// ErrDependencyUnavailable is returned when a section's required
	// inputs are not available, e.g. requesting the summary before the
	// prs and issues sections exist for the same window.
	ErrDependencyUnavailable = errors.New(
		"required report sections not yet available",
	)

	// ErrGenerationTimeout is returned when a section generation exceeds
	// its deadline. All waiters on the generation receive it.
	ErrGenerationTimeout = errors.New("section generation timed out")

	// ErrCacheCorruption is returned when a stored payload no longer
	// decodes. Callers treat it as a cache miss and regenerate.
	ErrCacheCorruption = errors.New("stored section payload is corrupt")
)

// UpstreamError wraps a failure from an external collaborator, identifying
// which collaborator and section it came from so per-section failures stay
// attributable.
type UpstreamError struct {
	// Collaborator names the failing dependency, e.g. "github" or
	// "summarizer".
	Collaborator string

	// Section is the section whose generation hit the failure.
	Section Section

	// Err is the underlying cause.
	Err error
}

// NewUpstreamError wraps err as an upstream failure.
func NewUpstreamError(collaborator string, section Section,
	err error) *UpstreamError {

	return &UpstreamError{
		Collaborator: collaborator,
		Section:      section,
		Err:          err,
	}
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed generating %s section: %v",
		e.Collaborator, e.Section, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstreamFailure reports whether err originated from an external
// collaborator.
func IsUpstreamFailure(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream)
}

// IsRetryable reports whether a request hitting err is worth repeating.
// Timeouts and upstream failures may clear on retry; invalid input will not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGenerationTimeout) || IsUpstreamFailure(err)
}
