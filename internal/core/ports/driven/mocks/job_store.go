package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// MockJobStore is an in-memory JobStore for testing. CreateIdempotent holds
// the store mutex across check-and-insert, mirroring the database uniqueness
// constraint that makes concurrent duplicate creation safe.
type MockJobStore struct {
	mu    sync.Mutex
	jobs  map[string]*domain.Job
	byKey map[string]string // idempotency key -> job id

	CreateErr  error
	UpdateErr  error
	DequeueErr error
}

// NewMockJobStore creates a new MockJobStore
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{
		jobs:  make(map[string]*domain.Job),
		byKey: make(map[string]string),
	}
}

func (m *MockJobStore) CreateIdempotent(ctx context.Context, job *domain.Job) (*domain.Job, bool, error) {
	if m.CreateErr != nil {
		return nil, false, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existingID, ok := m.byKey[job.IdempotencyKey]; ok {
		cp := *m.jobs[existingID]
		return &cp, false, nil
	}
	cp := *job
	m.jobs[job.ID] = &cp
	m.byKey[job.IdempotencyKey] = job.ID
	out := cp
	return &out, true, nil
}

func (m *MockJobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *MockJobStore) Update(ctx context.Context, job *domain.Job) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MockJobStore) Dequeue(ctx context.Context) (*domain.Job, error) {
	if m.DequeueErr != nil {
		return nil, m.DequeueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var ready []*domain.Job
	for _, job := range m.jobs {
		if job.IsReady() {
			ready = append(ready, job)
		}
	}
	if len(ready) == 0 {
		return nil, nil
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].CreatedAt.Before(ready[j].CreatedAt) })

	job := ready[0]
	if err := job.MarkRunning(); err != nil {
		return nil, err
	}
	cp := *job
	return &cp, nil
}

func (m *MockJobStore) DequeueWithTimeout(ctx context.Context, timeoutSeconds int) (*domain.Job, error) {
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	for {
		job, err := m.Dequeue(ctx)
		if err != nil || job != nil {
			return job, err
		}
		if timeoutSeconds <= 0 || time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (m *MockJobStore) ListStuck(ctx context.Context, threshold time.Duration) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var stuck []*domain.Job
	for _, job := range m.jobs {
		if job.IsStuck(threshold, now) {
			cp := *job
			stuck = append(stuck, &cp)
		}
	}
	return stuck, nil
}

func (m *MockJobStore) ListByOrganization(ctx context.Context, orgID string, limit int) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Job
	for _, job := range m.jobs {
		if job.OrganizationID == orgID {
			cp := *job
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockJobStore) Ping(ctx context.Context) error {
	return nil
}
