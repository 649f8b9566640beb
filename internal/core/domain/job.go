package domain

import (
	"fmt"
	"time"
)

// JobType identifies the type of background job
type JobType string

const (
	// JobTypeIngestSource runs the ingestion pipeline for one source
	JobTypeIngestSource JobType = "ingest_source"
	// JobTypeRetrainAgent re-ingests every live source of an agent
	JobTypeRetrainAgent JobType = "retrain_agent"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// StuckHeartbeatThreshold is how stale a running job's heartbeat must be
// before it is reported as stuck. Detection only; remediation is an
// operator action.
const StuckHeartbeatThreshold = 5 * time.Minute

// Progress reports how far through its work a job is
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// JobError is one entry in a job's error history
type JobError struct {
	Attempt int       `json:"attempt"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Job tracks one unit of asynchronous work against a source (or an agent
// retrain). The idempotency key is unique per store: a second creation
// request with the same key returns the existing job rather than
// duplicating work.
type Job struct {
	ID             string  `json:"id"`
	Type           JobType `json:"type"`
	OrganizationID string  `json:"organization_id"`
	AgentID        string  `json:"agent_id"`
	SourceID       string  `json:"source_id,omitempty"`

	Status         JobStatus `json:"status"`
	IdempotencyKey string    `json:"idempotency_key"`

	AttemptCount int `json:"attempt_count"`
	MaxAttempts  int `json:"max_attempts"`

	Progress     Progress   `json:"progress"`
	ErrorHistory []JobError `json:"error_history,omitempty"`

	// Force re-ingestion even when the content fingerprint is unchanged
	Force bool `json:"force,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ScheduledFor  time.Time  `json:"scheduled_for"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

// NewJob creates a job in the pending state
func NewJob(jobType JobType, orgID, agentID, sourceID, idempotencyKey string) *Job {
	now := time.Now()
	return &Job{
		ID:             GenerateID(),
		Type:           jobType,
		OrganizationID: orgID,
		AgentID:        agentID,
		SourceID:       sourceID,
		Status:         JobStatusPending,
		IdempotencyKey: idempotencyKey,
		MaxAttempts:    3,
		CreatedAt:      now,
		UpdatedAt:      now,
		ScheduledFor:   now,
	}
}

// validTransitions encodes the closed job state machine:
// pending → running → {completed|failed|cancelled}, failed → pending (retry),
// pending → cancelled.
var validTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
	JobStatusFailed:  {JobStatusPending},
}

// CanTransition reports whether moving to the target status is allowed
func (j *Job) CanTransition(to JobStatus) bool {
	for _, allowed := range validTransitions[j.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanRetry returns true if the job has attempts remaining
func (j *Job) CanRetry() bool {
	return j.AttemptCount < j.MaxAttempts
}

// IsTerminal reports whether the job has reached a final state
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted ||
		j.Status == JobStatusCancelled ||
		(j.Status == JobStatusFailed && !j.CanRetry())
}

// IsStuck reports whether a running job's heartbeat is older than the
// threshold as of now. Stuck is a reported condition, never auto-resolved.
func (j *Job) IsStuck(threshold time.Duration, now time.Time) bool {
	if j.Status != JobStatusRunning || j.LastHeartbeat == nil {
		return false
	}
	return now.Sub(*j.LastHeartbeat) > threshold
}

// MarkRunning moves the job into the running state, stamping startedAt and
// the initial heartbeat, and counting the attempt.
func (j *Job) MarkRunning() error {
	if !j.CanTransition(JobStatusRunning) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusRunning)
	}
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.LastHeartbeat = &now
	j.UpdatedAt = now
	j.AttemptCount++
	return nil
}

// Heartbeat refreshes lastHeartbeat and sets progress. Progress is expected
// to be monotonically increasing; callers report documented checkpoints.
func (j *Job) Heartbeat(progress Progress) {
	now := time.Now()
	j.LastHeartbeat = &now
	j.UpdatedAt = now
	if progress.Total > 0 {
		j.Progress = progress
	}
}

// MarkCompleted moves the job into the completed state
func (j *Job) MarkCompleted() error {
	if !j.CanTransition(JobStatusCompleted) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusCompleted)
	}
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// MarkCancelled moves the job into the cancelled state. In-flight steps
// observe this cooperatively and must not write results afterwards.
func (j *Job) MarkCancelled() error {
	if !j.CanTransition(JobStatusCancelled) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusCancelled)
	}
	now := time.Now()
	j.Status = JobStatusCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// RecordFailure appends to the error history and either reschedules the job
// (failed → pending with exponential backoff) or, once attempts are
// exhausted, leaves it terminally failed. Returns true when terminal.
func (j *Job) RecordFailure(msg string) (terminal bool, err error) {
	if !j.CanTransition(JobStatusFailed) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusFailed)
	}
	now := time.Now()
	j.Status = JobStatusFailed
	j.UpdatedAt = now
	j.ErrorHistory = append(j.ErrorHistory, JobError{
		Attempt: j.AttemptCount,
		Message: msg,
		At:      now,
	})

	if !j.CanRetry() {
		j.CompletedAt = &now
		return true, nil
	}

	// Exponential backoff: 2s, 4s, 8s, ... capped at 5 minutes
	backoff := time.Duration(1<<j.AttemptCount) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	j.Status = JobStatusPending
	j.ScheduledFor = now.Add(backoff)
	return false, nil
}

// ResetForRetry moves a terminally failed job back to pending. This is the
// operator-triggered retry path for stuck or exhausted jobs.
func (j *Job) ResetForRetry() error {
	if j.Status != JobStatusFailed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusPending)
	}
	now := time.Now()
	j.Status = JobStatusPending
	j.AttemptCount = 0
	j.ScheduledFor = now
	j.UpdatedAt = now
	j.CompletedAt = nil
	return nil
}

// IsReady returns true if the job is ready to be dequeued
func (j *Job) IsReady() bool {
	return j.Status == JobStatusPending && time.Now().After(j.ScheduledFor)
}
