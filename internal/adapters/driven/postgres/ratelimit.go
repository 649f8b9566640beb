package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// Ensure RateLimiter implements the port
var _ driven.RateLimitStore = (*RateLimiter)(nil)

// RateLimiter implements driven.RateLimitStore against the token-bucket
// columns on the organizations row. Refill and decrement happen in one
// statement under a row lock, so concurrent requests see a serialized
// bucket.
type RateLimiter struct {
	db *DB
}

// NewRateLimiter creates a new RateLimiter
func NewRateLimiter(db *DB) *RateLimiter {
	return &RateLimiter{db: db}
}

func (r *RateLimiter) Allow(ctx context.Context, orgID string, policy domain.RateLimitPolicy) (bool, error) {
	query := `
		WITH refilled AS (
			SELECT id,
				LEAST($2::float8, rate_limit_tokens + EXTRACT(EPOCH FROM (NOW() - rate_limit_last_refill)) * $3::float8) AS tokens
			FROM organizations
			WHERE id = $1
			FOR UPDATE
		)
		UPDATE organizations o
		SET rate_limit_tokens = CASE WHEN r.tokens >= 1 THEN r.tokens - 1 ELSE r.tokens END,
			rate_limit_last_refill = NOW()
		FROM refilled r
		WHERE o.id = r.id
		RETURNING r.tokens >= 1 AS allowed
	`
	var allowed bool
	err := r.db.QueryRowContext(ctx, query, orgID, float64(policy.Capacity), policy.RefillPerSec).Scan(&allowed)
	if err == sql.ErrNoRows {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	return allowed, nil
}

func (r *RateLimiter) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
