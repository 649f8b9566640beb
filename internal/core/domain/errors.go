package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrTenantBoundary indicates an operation targeted a resource outside
	// the caller's organization or agent. Never silently scoped down.
	ErrTenantBoundary = errors.New("tenant boundary violation")

	// ErrRateLimited indicates the organization's token bucket is empty
	ErrRateLimited = errors.New("rate limited")

	// ErrCreditsExhausted indicates the organization is out of message credits
	ErrCreditsExhausted = errors.New("message credits exhausted")

	// ErrNoContent indicates acquisition produced nothing to index
	// (zero scraped pages, zero chunks). Terminal, not retried.
	ErrNoContent = errors.New("no indexable content")

	// ErrInvalidTransition indicates a disallowed job status transition
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrJobCancelled indicates the job was cancelled while in flight
	ErrJobCancelled = errors.New("job cancelled")

	// ErrExternalService indicates a call to the embedding, generation,
	// crawl, or vector service failed. Retryable by the job tracker.
	ErrExternalService = errors.New("external service error")

	// ErrDimensionMismatch indicates an embedding's dimensionality does not
	// match the owning agent's configured dimensions
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// IsRetryable reports whether an ingestion step error should be retried by
// the job tracker. Content failures are terminal: retrying a source that
// produced zero pages or zero chunks will not change the outcome.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrNoContent),
		errors.Is(err, ErrTenantBoundary),
		errors.Is(err, ErrDimensionMismatch),
		errors.Is(err, ErrJobCancelled),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNotFound):
		return false
	}
	return true
}
