package driven

import (
	"context"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// JobStore persists jobs and doubles as the work queue. The idempotency key
// uniqueness constraint is the only serialization point for concurrent
// duplicate triggers: the store, not the caller, resolves the race.
type JobStore interface {
	// CreateIdempotent inserts the job unless a job with the same
	// idempotency key already exists, in which case the existing job is
	// returned with created=false. Must be atomic (create-if-absent).
	CreateIdempotent(ctx context.Context, job *domain.Job) (existing *domain.Job, created bool, err error)

	// Get retrieves a job by id
	Get(ctx context.Context, id string) (*domain.Job, error)

	// Update persists job state transitions, heartbeats, and progress
	Update(ctx context.Context, job *domain.Job) error

	// Dequeue atomically claims the next ready pending job and moves it to
	// running (stamping startedAt and the initial heartbeat). Returns nil
	// when no job is ready.
	Dequeue(ctx context.Context) (*domain.Job, error)

	// DequeueWithTimeout is Dequeue that waits up to timeout seconds for a
	// job to become ready
	DequeueWithTimeout(ctx context.Context, timeoutSeconds int) (*domain.Job, error)

	// ListStuck returns running jobs whose last heartbeat is older than the
	// threshold
	ListStuck(ctx context.Context, threshold time.Duration) ([]*domain.Job, error)

	// ListByOrganization returns an organization's jobs, newest first
	ListByOrganization(ctx context.Context, orgID string, limit int) ([]*domain.Job, error)

	// Ping checks backing store connectivity
	Ping(ctx context.Context) error
}
