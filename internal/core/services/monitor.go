package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

const (
	monitorLockName = "monitor:stuck-jobs"
	monitorLockTTL  = 90 * time.Second
)

// Monitor periodically reports stuck jobs. The distributed lock keeps one
// reporter active across instances; losing the lock just means another
// instance is reporting.
type Monitor struct {
	tracker  *JobTracker
	lock     driven.DistributedLock
	interval time.Duration
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// MonitorConfig holds dependencies for Monitor.
type MonitorConfig struct {
	Tracker  *JobTracker
	Lock     driven.DistributedLock
	Interval time.Duration
	Logger   *slog.Logger
}

// NewMonitor creates a new stuck-job monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		tracker:  cfg.Tracker,
		lock:     cfg.Lock,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the monitor loop.
func (m *Monitor) Start(ctx context.Context) {
	go m.loop(ctx)
	m.logger.Info("stuck-job monitor started", "interval", m.interval)
}

// Stop shuts the loop down and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
	m.logger.Info("stuck-job monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep runs one detection pass under the lock
func (m *Monitor) sweep(ctx context.Context) {
	acquired, err := m.lock.Acquire(ctx, monitorLockName, monitorLockTTL)
	if err != nil {
		m.logger.Warn("monitor lock acquisition failed", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := m.lock.Release(ctx, monitorLockName); err != nil {
			m.logger.Warn("monitor lock release failed", "error", err)
		}
	}()

	stuck, err := m.tracker.ReportStuck(ctx)
	if err != nil {
		m.logger.Error("stuck-job sweep failed", "error", err)
		return
	}
	if len(stuck) > 0 {
		m.logger.Warn("stuck jobs present", "count", len(stuck))
	}
}
