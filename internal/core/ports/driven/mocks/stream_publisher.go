package mocks

import (
	"context"
	"sync"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// MockStreamPublisher records published events and fans them out to
// in-memory subscribers
type MockStreamPublisher struct {
	mu sync.Mutex

	events      []domain.Event
	subscribers map[string][]chan domain.Event

	PublishErr   error
	SubscribeErr error
}

// NewMockStreamPublisher creates an empty publisher
func NewMockStreamPublisher() *MockStreamPublisher {
	return &MockStreamPublisher{subscribers: make(map[string][]chan domain.Event)}
}

func (m *MockStreamPublisher) Publish(ctx context.Context, event domain.Event) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	for _, ch := range m.subscribers[event.OrganizationID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (m *MockStreamPublisher) Subscribe(ctx context.Context, orgID string) (<-chan domain.Event, func(), error) {
	if m.SubscribeErr != nil {
		return nil, nil, m.SubscribeErr
	}
	ch := make(chan domain.Event, 64)
	m.mu.Lock()
	m.subscribers[orgID] = append(m.subscribers[orgID], ch)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subscribers[orgID]
		for i, c := range subs {
			if c == ch {
				m.subscribers[orgID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cancel, nil
}

// Events returns a copy of everything published so far
func (m *MockStreamPublisher) Events() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Event, len(m.events))
	copy(out, m.events)
	return out
}

// EventsOfType filters published events by type
func (m *MockStreamPublisher) EventsOfType(t domain.EventType) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
