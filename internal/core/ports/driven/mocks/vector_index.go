package mocks

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// MockVectorIndex is an in-memory VectorIndex for testing. Search ranks by
// cosine similarity over the stored embeddings, filtered by tenant fields.
type MockVectorIndex struct {
	mu     sync.RWMutex
	chunks map[string]*domain.Chunk

	UpsertErr error
	SearchErr error
}

// NewMockVectorIndex creates a new MockVectorIndex
func NewMockVectorIndex() *MockVectorIndex {
	return &MockVectorIndex{
		chunks: make(map[string]*domain.Chunk),
	}
}

func (m *MockVectorIndex) Upsert(ctx context.Context, chunks []*domain.Chunk) error {
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		cp := *c
		m.chunks[c.ID] = &cp
	}
	return nil
}

func (m *MockVectorIndex) Search(ctx context.Context, orgID, agentID string, queryVector []float32, k int) ([]driven.VectorHit, error) {
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []driven.VectorHit
	for _, c := range m.chunks {
		if c.OrganizationID != orgID || c.AgentID != agentID {
			continue
		}
		hits = append(hits, driven.VectorHit{
			ChunkID: c.ID,
			Score:   cosine(queryVector, c.Embedding),
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MockVectorIndex) DeleteBySource(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.SourceID == sourceID {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *MockVectorIndex) HealthCheck(ctx context.Context) error {
	return nil
}

// Count returns the number of indexed chunks (test helper)
func (m *MockVectorIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
