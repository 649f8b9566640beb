package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// MockUsageStore is an in-memory UsageStore for testing. Record holds the
// mutex across check-and-insert so idempotency holds under concurrency.
type MockUsageStore struct {
	mu     sync.Mutex
	events map[string]*domain.UsageEvent // keyed by idempotency key

	RecordErr error
}

// NewMockUsageStore creates a new MockUsageStore
func NewMockUsageStore() *MockUsageStore {
	return &MockUsageStore{
		events: make(map[string]*domain.UsageEvent),
	}
}

func (m *MockUsageStore) Record(ctx context.Context, event *domain.UsageEvent) (*domain.UsageEvent, error) {
	if m.RecordErr != nil {
		return nil, m.RecordErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.events[event.IdempotencyKey]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *event
	m.events[event.IdempotencyKey] = &cp
	out := cp
	return &out, nil
}

func (m *MockUsageStore) ListByOrganization(ctx context.Context, orgID string, limit int) ([]*domain.UsageEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.UsageEvent
	for _, e := range m.events {
		if e.OrganizationID == orgID {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Count returns the number of ledger rows (test helper)
func (m *MockUsageStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
