package driven

import (
	"context"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// RateLimitStore holds per-organization token-bucket state. Allow must be
// atomic (check-and-decrement as one operation) so concurrent requests can
// never over-admit, and refill is computed lazily from elapsed time rather
// than by a background timer.
type RateLimitStore interface {
	// Allow refills the organization's bucket from elapsed time, then
	// decrements one token if available. Returns false when the bucket is
	// empty.
	Allow(ctx context.Context, orgID string, policy domain.RateLimitPolicy) (bool, error)

	// Ping checks backing store connectivity
	Ping(ctx context.Context) error
}
