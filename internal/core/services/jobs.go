package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// JobTracker owns the job lifecycle: idempotent enqueue, state transitions,
// heartbeats, operator retry, and stuck detection. It is shared by the
// trigger boundary (enqueue, cancel, retry) and the worker (heartbeat,
// complete, fail).
type JobTracker struct {
	store     driven.JobStore
	publisher driven.StreamPublisher
	logger    *slog.Logger
}

// JobTrackerConfig holds dependencies for JobTracker.
type JobTrackerConfig struct {
	Store     driven.JobStore
	Publisher driven.StreamPublisher
	Logger    *slog.Logger
}

// NewJobTracker creates a new job tracker.
func NewJobTracker(cfg JobTrackerConfig) *JobTracker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobTracker{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    logger,
	}
}

// Enqueue creates a job unless one already exists for its idempotency key,
// in which case the existing job is returned. The store resolves concurrent
// duplicate triggers; callers never need to pre-check.
func (t *JobTracker) Enqueue(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	existing, created, err := t.store.CreateIdempotent(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	if !created {
		t.logger.Info("duplicate trigger deduplicated",
			"job_id", existing.ID,
			"idempotency_key", job.IdempotencyKey)
		return existing, nil
	}
	t.logger.Info("job enqueued",
		"job_id", existing.ID,
		"type", existing.Type,
		"source_id", existing.SourceID)
	return existing, nil
}

// Get retrieves a job, enforcing the organization boundary. A job belonging
// to another organization is reported as not found.
func (t *JobTracker) Get(ctx context.Context, orgID, jobID string) (*domain.Job, error) {
	job, err := t.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OrganizationID != orgID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

// Heartbeat refreshes the job's liveness timestamp and records progress.
// Called by the coordinator at documented checkpoints and by the worker's
// background ticker during long steps. The stored row is re-read first so a
// concurrent cancellation is observed instead of overwritten; it surfaces as
// domain.ErrJobCancelled.
func (t *JobTracker) Heartbeat(ctx context.Context, job *domain.Job, progress domain.Progress) error {
	current, err := t.store.Get(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to reload job: %w", err)
	}
	if current.Status == domain.JobStatusCancelled {
		*job = *current
		return domain.ErrJobCancelled
	}
	current.Heartbeat(progress)
	if err := t.store.Update(ctx, current); err != nil {
		return fmt.Errorf("failed to persist heartbeat: %w", err)
	}
	*job = *current
	return nil
}

// Complete moves a running job to completed.
func (t *JobTracker) Complete(ctx context.Context, job *domain.Job) error {
	if err := job.MarkCompleted(); err != nil {
		return err
	}
	job.Progress = domain.Progress{Current: 100, Total: 100, Message: "done"}
	if err := t.store.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to persist completion: %w", err)
	}
	t.logger.Info("job completed", "job_id", job.ID, "type", job.Type)
	return nil
}

// Fail records the failure and either reschedules the job with backoff or
// leaves it terminally failed once attempts are exhausted. Returns true when
// terminal.
func (t *JobTracker) Fail(ctx context.Context, job *domain.Job, msg string) (bool, error) {
	terminal, err := job.RecordFailure(msg)
	if err != nil {
		return false, err
	}
	if err := t.store.Update(ctx, job); err != nil {
		return terminal, fmt.Errorf("failed to persist failure: %w", err)
	}
	if terminal {
		t.logger.Error("job failed terminally",
			"job_id", job.ID,
			"attempts", job.AttemptCount,
			"error", msg)
	} else {
		t.logger.Warn("job failed, rescheduled",
			"job_id", job.ID,
			"attempt", job.AttemptCount,
			"next_run", job.ScheduledFor,
			"error", msg)
	}
	return terminal, nil
}

// FailTerminal records a non-retryable failure (content errors, tenant
// violations). The remaining attempt budget is forfeited.
func (t *JobTracker) FailTerminal(ctx context.Context, job *domain.Job, msg string) error {
	job.AttemptCount = job.MaxAttempts
	_, err := t.Fail(ctx, job, msg)
	return err
}

// Cancel marks a job cancelled. A running job keeps executing until its next
// cancellation check; it must not write results after observing the cancel.
func (t *JobTracker) Cancel(ctx context.Context, orgID, jobID string) error {
	job, err := t.Get(ctx, orgID, jobID)
	if err != nil {
		return err
	}
	if err := job.MarkCancelled(); err != nil {
		return err
	}
	if err := t.store.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to persist cancellation: %w", err)
	}
	t.logger.Info("job cancelled", "job_id", job.ID)
	return nil
}

// Retry moves a terminally failed job back to pending with a fresh attempt
// budget. This is an operator action; exhausted jobs are never retried
// automatically.
func (t *JobTracker) Retry(ctx context.Context, orgID, jobID string) error {
	job, err := t.Get(ctx, orgID, jobID)
	if err != nil {
		return err
	}
	if err := job.ResetForRetry(); err != nil {
		return err
	}
	if err := t.store.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to persist retry: %w", err)
	}
	t.logger.Info("job reset for retry", "job_id", job.ID)
	return nil
}

// IsCancelled re-reads the job and reports whether it was cancelled while
// running. The coordinator calls this between pipeline steps.
func (t *JobTracker) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	job, err := t.store.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Status == domain.JobStatusCancelled, nil
}

// ListStuck returns running jobs with heartbeats older than the standard
// threshold. Detection only; remediation is Cancel or Retry.
func (t *JobTracker) ListStuck(ctx context.Context) ([]*domain.Job, error) {
	return t.store.ListStuck(ctx, domain.StuckHeartbeatThreshold)
}

// ListByOrganization returns an organization's recent jobs.
func (t *JobTracker) ListByOrganization(ctx context.Context, orgID string, limit int) ([]*domain.Job, error) {
	return t.store.ListByOrganization(ctx, orgID, limit)
}

// ReportStuck publishes a job.stuck event for every stuck job. Called by the
// monitor on its polling interval.
func (t *JobTracker) ReportStuck(ctx context.Context) ([]*domain.Job, error) {
	stuck, err := t.ListStuck(ctx)
	if err != nil {
		return nil, err
	}
	for _, job := range stuck {
		t.logger.Warn("stuck job detected",
			"job_id", job.ID,
			"type", job.Type,
			"last_heartbeat", job.LastHeartbeat)
		if t.publisher == nil {
			continue
		}
		event := domain.Event{
			Type:           domain.EventJobStuck,
			OrganizationID: job.OrganizationID,
			Subject:        job.ID,
			Payload: map[string]string{
				"type":           string(job.Type),
				"last_heartbeat": job.LastHeartbeat.Format(time.RFC3339),
			},
			At: time.Now(),
		}
		if err := t.publisher.Publish(ctx, event); err != nil {
			t.logger.Warn("failed to publish stuck event", "job_id", job.ID, "error", err)
		}
	}
	return stuck, nil
}
