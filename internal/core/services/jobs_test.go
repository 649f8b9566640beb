package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven/mocks"
)

func newTestTracker() (*JobTracker, *mocks.MockJobStore, *mocks.MockStreamPublisher) {
	store := mocks.NewMockJobStore()
	publisher := mocks.NewMockStreamPublisher()
	tracker := NewJobTracker(JobTrackerConfig{Store: store, Publisher: publisher})
	return tracker, store, publisher
}

func TestEnqueueDeduplicates(t *testing.T) {
	tracker, _, _ := newTestTracker()
	ctx := context.Background()

	first, err := tracker.Enqueue(ctx, domain.NewJob(domain.JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1"))
	if err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	second, err := tracker.Enqueue(ctx, domain.NewJob(domain.JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1"))
	if err != nil {
		t.Fatalf("second enqueue failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected both triggers to observe one job, got %s and %s", first.ID, second.ID)
	}
}

func TestEnqueueConcurrentDuplicatesCollapse(t *testing.T) {
	tracker, store, _ := newTestTracker()
	ctx := context.Background()

	const callers = 16
	ids := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := tracker.Enqueue(ctx, domain.NewJob(domain.JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1"))
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = job.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("enqueue %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("caller %d observed job %s, expected %s", i, ids[i], ids[0])
		}
	}

	jobs, err := store.ListByOrganization(ctx, "org-1", 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("expected exactly one job row, got %d", len(jobs))
	}
}

func TestGetEnforcesOrganizationBoundary(t *testing.T) {
	tracker, _, _ := newTestTracker()
	ctx := context.Background()

	job, err := tracker.Enqueue(ctx, domain.NewJob(domain.JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1"))
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if _, err := tracker.Get(ctx, "org-1", job.ID); err != nil {
		t.Errorf("owner lookup failed: %v", err)
	}
	if _, err := tracker.Get(ctx, "org-2", job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound across the boundary, got %v", err)
	}
}

func TestFailThenRetryCycle(t *testing.T) {
	tracker, store, _ := newTestTracker()
	ctx := context.Background()

	job, err := tracker.Enqueue(ctx, domain.NewJob(domain.JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1"))
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	job.MaxAttempts = 1
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("seed update failed: %v", err)
	}

	if err := job.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	terminal, err := tracker.Fail(ctx, job, "embed timeout")
	if err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if !terminal {
		t.Fatal("expected single-attempt job to fail terminally")
	}

	stored, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != domain.JobStatusFailed {
		t.Errorf("expected persisted failed status, got %s", stored.Status)
	}

	// Operator retry resets the attempt budget
	if err := tracker.Retry(ctx, "org-1", job.ID); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	stored, _ = store.Get(ctx, job.ID)
	if stored.Status != domain.JobStatusPending || stored.AttemptCount != 0 {
		t.Errorf("expected pending job with fresh budget, got %s attempts=%d",
			stored.Status, stored.AttemptCount)
	}
}

func TestFailTerminalForfeitsBudget(t *testing.T) {
	tracker, store, _ := newTestTracker()
	ctx := context.Background()

	job, _ := tracker.Enqueue(ctx, domain.NewJob(domain.JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1"))
	if err := job.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("seed update failed: %v", err)
	}

	if err := tracker.FailTerminal(ctx, job, "no indexable content"); err != nil {
		t.Fatalf("FailTerminal failed: %v", err)
	}

	stored, _ := store.Get(ctx, job.ID)
	if stored.Status != domain.JobStatusFailed {
		t.Errorf("expected failed status, got %s", stored.Status)
	}
	if !stored.IsTerminal() {
		t.Error("expected terminal job despite remaining natural attempts")
	}
}

func TestCancelPendingJob(t *testing.T) {
	tracker, store, _ := newTestTracker()
	ctx := context.Background()

	job, _ := tracker.Enqueue(ctx, domain.NewJob(domain.JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1"))
	if err := tracker.Cancel(ctx, "org-1", job.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	cancelled, err := tracker.IsCancelled(ctx, job.ID)
	if err != nil {
		t.Fatalf("IsCancelled failed: %v", err)
	}
	if !cancelled {
		t.Error("expected job to report cancelled")
	}

	// Cancelled jobs are never dequeued
	if claimed, _ := store.Dequeue(ctx); claimed != nil {
		t.Errorf("expected no dequeue after cancel, got %s", claimed.ID)
	}
}

func TestReportStuckPublishesEvents(t *testing.T) {
	tracker, store, publisher := newTestTracker()
	ctx := context.Background()

	job, _ := tracker.Enqueue(ctx, domain.NewJob(domain.JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1"))
	if err := job.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	stale := time.Now().Add(-10 * time.Minute)
	job.LastHeartbeat = &stale
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("seed update failed: %v", err)
	}

	stuck, err := tracker.ReportStuck(ctx)
	if err != nil {
		t.Fatalf("ReportStuck failed: %v", err)
	}
	if len(stuck) != 1 {
		t.Fatalf("expected 1 stuck job, got %d", len(stuck))
	}

	events := publisher.EventsOfType(domain.EventJobStuck)
	if len(events) != 1 {
		t.Fatalf("expected 1 stuck event, got %d", len(events))
	}
	if events[0].Subject != job.ID {
		t.Errorf("expected event subject %s, got %s", job.ID, events[0].Subject)
	}

	// A fresh heartbeat clears the report on the next sweep
	if err := tracker.Heartbeat(ctx, job, domain.Progress{Current: 50, Total: 100}); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	stuck, _ = tracker.ReportStuck(ctx)
	if len(stuck) != 0 {
		t.Errorf("expected no stuck jobs after heartbeat, got %d", len(stuck))
	}
}

func TestCompleteSetsFullProgress(t *testing.T) {
	tracker, store, _ := newTestTracker()
	ctx := context.Background()

	job, _ := tracker.Enqueue(ctx, domain.NewJob(domain.JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1"))
	if err := job.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("seed update failed: %v", err)
	}

	if err := tracker.Complete(ctx, job); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	stored, _ := store.Get(ctx, job.ID)
	if stored.Status != domain.JobStatusCompleted {
		t.Errorf("expected completed status, got %s", stored.Status)
	}
	if stored.Progress.Current != 100 {
		t.Errorf("expected full progress, got %d", stored.Progress.Current)
	}
}
