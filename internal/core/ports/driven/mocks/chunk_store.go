package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// MockChunkStore is an in-memory ChunkStore for testing
type MockChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]*domain.Chunk

	ReplaceErr error
}

// NewMockChunkStore creates a new MockChunkStore
func NewMockChunkStore() *MockChunkStore {
	return &MockChunkStore{
		chunks: make(map[string]*domain.Chunk),
	}
}

func (m *MockChunkStore) ReplaceForSource(ctx context.Context, sourceID string, chunks []*domain.Chunk) error {
	if m.ReplaceErr != nil {
		return m.ReplaceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.SourceID == sourceID {
			delete(m.chunks, id)
		}
	}
	for _, c := range chunks {
		cp := *c
		m.chunks[c.ID] = &cp
	}
	return nil
}

func (m *MockChunkStore) GetByIDs(ctx context.Context, orgID string, ids []string) ([]*domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Chunk
	for _, id := range ids {
		c, ok := m.chunks[id]
		if !ok || c.OrganizationID != orgID {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MockChunkStore) GetBySource(ctx context.Context, sourceID string) ([]*domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Chunk
	for _, c := range m.chunks {
		if c.SourceID == sourceID {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

func (m *MockChunkStore) DeleteBySource(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.SourceID == sourceID {
			delete(m.chunks, id)
		}
	}
	return nil
}

// Count returns the number of stored chunks (test helper)
func (m *MockChunkStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}
