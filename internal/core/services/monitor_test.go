package services

import (
	"context"
	"testing"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven/mocks"
)

func TestMonitorSweepReportsStuckJobs(t *testing.T) {
	store := mocks.NewMockJobStore()
	publisher := mocks.NewMockStreamPublisher()
	lock := mocks.NewMockDistributedLock()
	tracker := NewJobTracker(JobTrackerConfig{Store: store, Publisher: publisher})
	monitor := NewMonitor(MonitorConfig{Tracker: tracker, Lock: lock, Interval: time.Minute})

	ctx := context.Background()
	job := domain.NewJob(domain.JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1")
	if _, err := tracker.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := job.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	stale := time.Now().Add(-time.Hour)
	job.LastHeartbeat = &stale
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("seed update failed: %v", err)
	}

	monitor.sweep(ctx)

	events := publisher.EventsOfType(domain.EventJobStuck)
	if len(events) != 1 {
		t.Fatalf("expected 1 stuck event, got %d", len(events))
	}
	if events[0].Subject != job.ID {
		t.Errorf("expected subject %s, got %s", job.ID, events[0].Subject)
	}

	// The job itself is untouched: detection, not remediation
	stored, _ := store.Get(ctx, job.ID)
	if stored.Status != domain.JobStatusRunning {
		t.Errorf("expected job left running, got %s", stored.Status)
	}

	// Lock released after the sweep
	if lock.IsHeld(monitorLockName) {
		t.Error("expected monitor lock released")
	}
}

func TestMonitorSweepSkipsWhenLockHeld(t *testing.T) {
	store := mocks.NewMockJobStore()
	publisher := mocks.NewMockStreamPublisher()
	lock := mocks.NewMockDistributedLock()
	tracker := NewJobTracker(JobTrackerConfig{Store: store, Publisher: publisher})
	monitor := NewMonitor(MonitorConfig{Tracker: tracker, Lock: lock})

	ctx := context.Background()
	job := domain.NewJob(domain.JobTypeIngestSource, "org-1", "agent-1", "src-1", "key-1")
	if _, err := tracker.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := job.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	stale := time.Now().Add(-time.Hour)
	job.LastHeartbeat = &stale
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("seed update failed: %v", err)
	}

	// Another instance holds the lock
	if ok, _ := lock.Acquire(ctx, monitorLockName, time.Minute); !ok {
		t.Fatal("seed lock acquisition failed")
	}

	monitor.sweep(ctx)

	if len(publisher.EventsOfType(domain.EventJobStuck)) != 0 {
		t.Error("expected no events while another instance holds the lock")
	}
}

func TestMonitorStartStop(t *testing.T) {
	store := mocks.NewMockJobStore()
	lock := mocks.NewMockDistributedLock()
	tracker := NewJobTracker(JobTrackerConfig{Store: store})
	monitor := NewMonitor(MonitorConfig{Tracker: tracker, Lock: lock, Interval: 5 * time.Millisecond})

	monitor.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	monitor.Stop()
}
