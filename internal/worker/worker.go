package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
	"github.com/gitethanwoo/openbase-sub001/internal/core/services"
)

// Worker pulls jobs from the job store and runs them through the ingestion
// coordinator. The coordinator owns all failure bookkeeping (retry vs
// terminal); the worker only completes jobs that return cleanly.
type Worker struct {
	jobs        driven.JobStore
	coordinator *services.IngestionCoordinator
	tracker     *services.JobTracker
	logger      *slog.Logger

	// Configuration
	concurrency       int
	dequeueTimeout    int // seconds
	heartbeatInterval time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Config holds configuration for the worker
type Config struct {
	Jobs        driven.JobStore
	Coordinator *services.IngestionCoordinator
	Tracker     *services.JobTracker
	Logger      *slog.Logger

	// Concurrency is the number of concurrent job processors
	Concurrency int

	// DequeueTimeout is how many seconds to wait for a job before checking
	// for shutdown again
	DequeueTimeout int

	// HeartbeatInterval is how often a running job's heartbeat is refreshed
	// independently of pipeline checkpoints
	HeartbeatInterval time.Duration
}

// New creates a new job worker
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	heartbeatInterval := cfg.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}

	return &Worker{
		jobs:              cfg.Jobs,
		coordinator:       cfg.Coordinator,
		tracker:           cfg.Tracker,
		logger:            logger,
		concurrency:       concurrency,
		dequeueTimeout:    dequeueTimeout,
		heartbeatInterval: heartbeatInterval,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker, waiting for in-flight jobs
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop is the main processing loop for a worker goroutine
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		job, err := w.jobs.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue job", "error", err)
			time.Sleep(time.Second) // Back off on error
			continue
		}

		if job == nil {
			continue
		}

		w.processJob(ctx, job, logger)
	}
}

// processJob runs a single job through the coordinator while keeping its
// heartbeat fresh in the background.
func (w *Worker) processJob(ctx context.Context, job *domain.Job, logger *slog.Logger) {
	logger = logger.With("job_id", job.ID, "job_type", job.Type, "organization_id", job.OrganizationID)
	logger.Info("processing job", "attempt", job.AttemptCount)

	startTime := time.Now()

	hbDone := make(chan struct{})
	go w.heartbeatLoop(ctx, *job, hbDone, logger)

	err := w.coordinator.Run(ctx, job)
	close(hbDone)

	duration := time.Since(startTime)

	if err != nil {
		// The coordinator already recorded the failure (retry schedule or
		// terminal) against the job; nothing to write here.
		if errors.Is(err, domain.ErrJobCancelled) {
			logger.Info("job cancelled", "duration", duration)
			return
		}
		logger.Error("job failed", "duration", duration, "error", err)
		return
	}

	if err := w.tracker.Complete(ctx, job); err != nil {
		logger.Error("failed to complete job", "error", err)
		return
	}
	logger.Info("job completed", "duration", duration)
}

// heartbeatLoop refreshes the heartbeat of a running job so long pipeline
// steps never look stuck. It works on its own copy of the job; the tracker
// re-reads stored state, so coordinator progress is never clobbered.
func (w *Worker) heartbeatLoop(ctx context.Context, job domain.Job, done <-chan struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Zero progress refreshes the heartbeat without touching the
			// coordinator's checkpoint progress.
			err := w.tracker.Heartbeat(ctx, &job, domain.Progress{})
			if errors.Is(err, domain.ErrJobCancelled) {
				return
			}
			if err != nil {
				logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

// Health reports worker liveness and queue connectivity
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.jobs.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
