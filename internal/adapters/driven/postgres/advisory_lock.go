package postgres

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*AdvisoryLock)(nil)

// AdvisoryLock single-flights the stuck-job monitor through PostgreSQL
// advisory locks when no Redis is configured.
//
// Advisory locks are connection-scoped, not TTL-based: the TTL parameter is
// ignored, Extend is a no-op, and a dropped connection releases the lock.
// Deployments running more than one monitor instance should prefer the
// Redis-backed lock, whose leases expire on their own.
type AdvisoryLock struct {
	db *DB
}

// NewAdvisoryLock creates a new PostgreSQL advisory lock adapter
func NewAdvisoryLock(db *DB) *AdvisoryLock {
	return &AdvisoryLock{db: db}
}

// hashLockName converts a lock name to the 64-bit key advisory locks need.
// FNV-1a keeps the mapping stable across instances.
func hashLockName(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte("openbase:lock:" + name))
	return int64(h.Sum64())
}

// Acquire attempts to take the named lock without blocking
func (l *AdvisoryLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", hashLockName(name)).Scan(&acquired)
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// Release releases the named lock. Releasing a lock that is not held is not
// an error.
func (l *AdvisoryLock) Release(ctx context.Context, name string) error {
	var released bool
	return l.db.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", hashLockName(name)).Scan(&released)
}

// Extend is a no-op: advisory locks are held until released or the
// connection closes
func (l *AdvisoryLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	return nil
}

// Ping checks database connectivity
func (l *AdvisoryLock) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}
