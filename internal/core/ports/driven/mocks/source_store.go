package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// MockSourceStore is an in-memory SourceStore for testing
type MockSourceStore struct {
	mu      sync.RWMutex
	sources map[string]*domain.Source

	// Error injection
	CreateErr error
	GetErr    error
	UpdateErr error
}

// NewMockSourceStore creates a new MockSourceStore
func NewMockSourceStore() *MockSourceStore {
	return &MockSourceStore{
		sources: make(map[string]*domain.Source),
	}
}

func (m *MockSourceStore) Create(ctx context.Context, source *domain.Source) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[source.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *source
	m.sources[source.ID] = &cp
	return nil
}

func (m *MockSourceStore) Get(ctx context.Context, orgID, id string) (*domain.Source, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	source, ok := m.sources[id]
	if !ok || source.OrganizationID != orgID {
		return nil, domain.ErrNotFound
	}
	cp := *source
	return &cp, nil
}

func (m *MockSourceStore) Update(ctx context.Context, source *domain.Source) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[source.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *source
	m.sources[source.ID] = &cp
	return nil
}

func (m *MockSourceStore) ListByAgent(ctx context.Context, orgID, agentID string) ([]*domain.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Source
	for _, s := range m.sources {
		if s.OrganizationID == orgID && s.AgentID == agentID && !s.IsDeleted() {
			cp := *s
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MockSourceStore) SoftDelete(ctx context.Context, orgID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	source, ok := m.sources[id]
	if !ok || source.OrganizationID != orgID {
		return domain.ErrNotFound
	}
	now := time.Now()
	source.DeletedAt = &now
	source.UpdatedAt = now
	return nil
}
