package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewJob(t *testing.T) {
	job := NewJob(JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1")

	if job.ID == "" {
		t.Error("expected job ID to be generated")
	}
	if job.Status != JobStatusPending {
		t.Errorf("expected pending status, got %s", job.Status)
	}
	if job.MaxAttempts != 3 {
		t.Errorf("expected 3 max attempts, got %d", job.MaxAttempts)
	}
	if job.IdempotencyKey != "key-1" {
		t.Errorf("expected idempotency key key-1, got %s", job.IdempotencyKey)
	}
}

func TestJobTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{"pending to running", JobStatusPending, JobStatusRunning, true},
		{"pending to cancelled", JobStatusPending, JobStatusCancelled, true},
		{"pending to completed", JobStatusPending, JobStatusCompleted, false},
		{"running to completed", JobStatusRunning, JobStatusCompleted, true},
		{"running to failed", JobStatusRunning, JobStatusFailed, true},
		{"running to cancelled", JobStatusRunning, JobStatusCancelled, true},
		{"running to pending", JobStatusRunning, JobStatusPending, false},
		{"failed to pending", JobStatusFailed, JobStatusPending, true},
		{"failed to running", JobStatusFailed, JobStatusRunning, false},
		{"completed is terminal", JobStatusCompleted, JobStatusRunning, false},
		{"cancelled is terminal", JobStatusCancelled, JobStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{Status: tt.from}
			if got := job.CanTransition(tt.to); got != tt.allowed {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestJobMarkRunning(t *testing.T) {
	job := NewJob(JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1")

	if err := job.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if job.Status != JobStatusRunning {
		t.Errorf("expected running status, got %s", job.Status)
	}
	if job.StartedAt == nil {
		t.Error("expected startedAt to be stamped")
	}
	if job.LastHeartbeat == nil {
		t.Error("expected initial heartbeat to be stamped")
	}
	if job.AttemptCount != 1 {
		t.Errorf("expected attempt count 1, got %d", job.AttemptCount)
	}

	// Running again from running is invalid
	if err := job.MarkRunning(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestJobRecordFailureReschedules(t *testing.T) {
	job := NewJob(JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1")
	if err := job.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}

	terminal, err := job.RecordFailure("embed call timed out")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if terminal {
		t.Error("expected non-terminal failure on first attempt")
	}
	if job.Status != JobStatusPending {
		t.Errorf("expected pending after retryable failure, got %s", job.Status)
	}
	if len(job.ErrorHistory) != 1 {
		t.Fatalf("expected 1 error history entry, got %d", len(job.ErrorHistory))
	}
	if job.ErrorHistory[0].Attempt != 1 {
		t.Errorf("expected error recorded against attempt 1, got %d", job.ErrorHistory[0].Attempt)
	}
	if !job.ScheduledFor.After(time.Now()) {
		t.Error("expected backoff to push scheduledFor into the future")
	}
}

func TestJobRecordFailureTerminal(t *testing.T) {
	job := NewJob(JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1")
	job.MaxAttempts = 2

	for i := 0; i < 2; i++ {
		job.Status = JobStatusPending
		job.ScheduledFor = time.Now().Add(-time.Second)
		if err := job.MarkRunning(); err != nil {
			t.Fatalf("attempt %d: MarkRunning failed: %v", i+1, err)
		}
		terminal, err := job.RecordFailure("still broken")
		if err != nil {
			t.Fatalf("attempt %d: RecordFailure failed: %v", i+1, err)
		}
		if i == 0 && terminal {
			t.Error("expected first failure to be retryable")
		}
		if i == 1 && !terminal {
			t.Error("expected second failure to exhaust attempts")
		}
	}

	if job.Status != JobStatusFailed {
		t.Errorf("expected terminally failed status, got %s", job.Status)
	}
	if !job.IsTerminal() {
		t.Error("expected exhausted job to be terminal")
	}
	if len(job.ErrorHistory) != 2 {
		t.Errorf("expected 2 error history entries, got %d", len(job.ErrorHistory))
	}
}

func TestJobBackoffGrowth(t *testing.T) {
	job := NewJob(JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1")
	job.MaxAttempts = 10

	var prev time.Duration
	for i := 0; i < 3; i++ {
		job.Status = JobStatusRunning
		before := time.Now()
		terminal, err := job.RecordFailure("transient")
		if err != nil || terminal {
			t.Fatalf("attempt %d: terminal=%v err=%v", i+1, terminal, err)
		}
		backoff := job.ScheduledFor.Sub(before)
		if backoff <= prev {
			t.Errorf("attempt %d: expected backoff to grow, got %v after %v", i+1, backoff, prev)
		}
		if backoff > 5*time.Minute+time.Second {
			t.Errorf("attempt %d: backoff %v exceeds cap", i+1, backoff)
		}
		prev = backoff
		job.AttemptCount++
	}
}

func TestJobCancel(t *testing.T) {
	job := NewJob(JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1")

	if err := job.MarkCancelled(); err != nil {
		t.Fatalf("MarkCancelled failed: %v", err)
	}
	if job.Status != JobStatusCancelled {
		t.Errorf("expected cancelled status, got %s", job.Status)
	}
	if !job.IsTerminal() {
		t.Error("expected cancelled job to be terminal")
	}
	if err := job.MarkRunning(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition after cancel, got %v", err)
	}
}

func TestJobIsStuck(t *testing.T) {
	job := NewJob(JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1")
	now := time.Now()

	if job.IsStuck(StuckHeartbeatThreshold, now) {
		t.Error("pending job must never be stuck")
	}

	if err := job.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if job.IsStuck(StuckHeartbeatThreshold, now) {
		t.Error("freshly started job must not be stuck")
	}

	stale := now.Add(-10 * time.Minute)
	job.LastHeartbeat = &stale
	if !job.IsStuck(StuckHeartbeatThreshold, now) {
		t.Error("expected job with stale heartbeat to be stuck")
	}

	// A heartbeat clears the condition
	job.Heartbeat(Progress{Current: 50, Total: 100})
	if job.IsStuck(StuckHeartbeatThreshold, time.Now()) {
		t.Error("expected heartbeat to clear stuck condition")
	}
	if job.Progress.Current != 50 {
		t.Errorf("expected progress 50, got %d", job.Progress.Current)
	}
}

func TestJobResetForRetry(t *testing.T) {
	job := NewJob(JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1")
	job.Status = JobStatusFailed
	job.AttemptCount = 3
	done := time.Now()
	job.CompletedAt = &done

	if err := job.ResetForRetry(); err != nil {
		t.Fatalf("ResetForRetry failed: %v", err)
	}
	if job.Status != JobStatusPending {
		t.Errorf("expected pending after reset, got %s", job.Status)
	}
	if job.AttemptCount != 0 {
		t.Errorf("expected attempt count reset to 0, got %d", job.AttemptCount)
	}
	if job.CompletedAt != nil {
		t.Error("expected completedAt cleared")
	}

	job.Status = JobStatusCompleted
	if err := job.ResetForRetry(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for completed job, got %v", err)
	}
}
