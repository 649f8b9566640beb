package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// MockConversationStore is an in-memory ConversationStore for testing
type MockConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
	messages      map[string]*domain.Message

	AppendErr error
	UpdateErr error
}

// NewMockConversationStore creates a new MockConversationStore
func NewMockConversationStore() *MockConversationStore {
	return &MockConversationStore{
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string]*domain.Message),
	}
}

func (m *MockConversationStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *conv
	m.conversations[conv.ID] = &cp
	return nil
}

func (m *MockConversationStore) GetConversation(ctx context.Context, orgID, id string) (*domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	if !ok || conv.OrganizationID != orgID {
		return nil, domain.ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

func (m *MockConversationStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *MockConversationStore) UpdateMessage(ctx context.Context, msg *domain.Message) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[msg.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *MockConversationStore) ListMessages(ctx context.Context, orgID, conversationID string) ([]*domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && msg.OrganizationID == orgID {
			cp := *msg
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// GetMessage returns a stored message by id (test helper)
func (m *MockConversationStore) GetMessage(id string) *domain.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil
	}
	cp := *msg
	return &cp
}
