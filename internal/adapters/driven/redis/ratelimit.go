package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ driven.RateLimitStore = (*RateLimiter)(nil)

const rateLimitPrefix = "openbase:ratelimit:"

// allowScript implements a lazy-refill token bucket in one atomic script.
// KEYS[1] holds "tokens" and "refreshed" (unix millis of the last refill).
// ARGV: capacity, refill per second, now in unix millis.
// A missing bucket starts full. Returns 1 when a token was taken, 0 when
// the bucket is empty.
var allowScript = redis.NewScript(`
	local capacity = tonumber(ARGV[1])
	local refill = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local state = redis.call("hmget", KEYS[1], "tokens", "refreshed")
	local tokens = tonumber(state[1])
	local refreshed = tonumber(state[2])

	if tokens == nil then
		tokens = capacity
		refreshed = now
	end

	local elapsed = (now - refreshed) / 1000.0
	if elapsed > 0 then
		tokens = math.min(capacity, tokens + elapsed * refill)
	end

	local allowed = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	end

	redis.call("hset", KEYS[1], "tokens", tokens, "refreshed", now)
	redis.call("pexpire", KEYS[1], 3600000)
	return allowed
`)

// RateLimiter implements driven.RateLimitStore with a per-organization
// token bucket held in a Redis hash. The Lua script makes refill and
// decrement a single atomic step.
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter creates a new Redis-backed RateLimiter
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, orgID string, policy domain.RateLimitPolicy) (bool, error) {
	key := rateLimitPrefix + orgID
	now := time.Now().UnixMilli()
	result, err := allowScript.Run(ctx, r.client, []string{key},
		policy.Capacity, policy.RefillPerSec, now).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit check for %s: %w", orgID, err)
	}
	return result == 1, nil
}

func (r *RateLimiter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
