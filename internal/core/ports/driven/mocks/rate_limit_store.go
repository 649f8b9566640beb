package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// MockRateLimitStore implements a lazy-refill token bucket in memory
type MockRateLimitStore struct {
	mu sync.Mutex

	buckets map[string]*bucketState

	AllowErr error
	PingErr  error

	// Now overrides the clock when set
	Now func() time.Time
}

type bucketState struct {
	tokens     float64
	lastRefill time.Time
}

// NewMockRateLimitStore creates an empty in-memory limiter
func NewMockRateLimitStore() *MockRateLimitStore {
	return &MockRateLimitStore{buckets: make(map[string]*bucketState)}
}

func (m *MockRateLimitStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MockRateLimitStore) Allow(ctx context.Context, orgID string, policy domain.RateLimitPolicy) (bool, error) {
	if m.AllowErr != nil {
		return false, m.AllowErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[orgID]
	if !ok {
		b = &bucketState{tokens: float64(policy.Capacity), lastRefill: now}
		m.buckets[orgID] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * policy.RefillPerSec
		if b.tokens > float64(policy.Capacity) {
			b.tokens = float64(policy.Capacity)
		}
		b.lastRefill = now
	}

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

func (m *MockRateLimitStore) Ping(ctx context.Context) error {
	return m.PingErr
}
