package memory

import (
	"context"
	"sync"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.StreamPublisher = (*StreamPublisher)(nil)

const subscriberBuffer = 16

// StreamPublisher is an in-process event fan-out for single-instance
// deployments without Redis. Events only reach subscribers in the same
// process; multi-instance deployments need the Redis publisher.
type StreamPublisher struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan domain.Event // orgID -> subscriber id -> channel
}

// NewStreamPublisher creates a new in-memory stream publisher
func NewStreamPublisher() *StreamPublisher {
	return &StreamPublisher{
		subs: make(map[string]map[int]chan domain.Event),
	}
}

// Publish delivers an event to every current subscriber of its
// organization. Slow subscribers are skipped rather than blocked on.
func (p *StreamPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, ch := range p.subs[event.OrganizationID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of events for an organization. The cancel
// function releases the subscription and closes the channel.
func (p *StreamPublisher) Subscribe(ctx context.Context, orgID string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, subscriberBuffer)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	if p.subs[orgID] == nil {
		p.subs[orgID] = make(map[int]chan domain.Event)
	}
	p.subs[orgID][id] = ch
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs[orgID], id)
			if len(p.subs[orgID]) == 0 {
				delete(p.subs, orgID)
			}
			p.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}
