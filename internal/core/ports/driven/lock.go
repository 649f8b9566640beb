package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates singleton work (the stuck-job monitor) across
// instances
type DistributedLock interface {
	// Acquire attempts to take a named lock with a TTL.
	// Returns true if acquired, false if held elsewhere.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Release releases a named lock if held by this instance
	Release(ctx context.Context, name string) error

	// Extend extends the TTL of a currently held lock
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks backing store connectivity
	Ping(ctx context.Context) error
}
