package mocks

import (
	"context"
	"sync"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// MockOrganizationStore is an in-memory OrganizationStore for testing
type MockOrganizationStore struct {
	mu            sync.Mutex
	organizations map[string]*domain.Organization
	agents        map[string]*domain.Agent
}

// NewMockOrganizationStore creates a new MockOrganizationStore
func NewMockOrganizationStore() *MockOrganizationStore {
	return &MockOrganizationStore{
		organizations: make(map[string]*domain.Organization),
		agents:        make(map[string]*domain.Agent),
	}
}

// AddOrganization seeds an organization (test helper)
func (m *MockOrganizationStore) AddOrganization(org *domain.Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *org
	m.organizations[org.ID] = &cp
}

// AddAgent seeds an agent (test helper)
func (m *MockOrganizationStore) AddAgent(agent *domain.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *agent
	m.agents[agent.ID] = &cp
}

func (m *MockOrganizationStore) GetOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.organizations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (m *MockOrganizationStore) GetAgent(ctx context.Context, orgID, agentID string) (*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok || agent.OrganizationID != orgID {
		return nil, domain.ErrNotFound
	}
	cp := *agent
	return &cp, nil
}

func (m *MockOrganizationStore) UpdateAgent(ctx context.Context, agent *domain.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[agent.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *agent
	m.agents[agent.ID] = &cp
	return nil
}

func (m *MockOrganizationStore) ConsumeMessageCredit(ctx context.Context, orgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.organizations[orgID]
	if !ok {
		return domain.ErrNotFound
	}
	if org.MessageCredits <= 0 {
		return domain.ErrCreditsExhausted
	}
	org.MessageCredits--
	return nil
}
