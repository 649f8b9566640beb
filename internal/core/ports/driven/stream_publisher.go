package driven

import (
	"context"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// StreamPublisher distributes state-change events to explicit subscribers
// (polling endpoints, websockets, reconnecting stream clients). Publishing
// is best-effort fan-out: a slow subscriber never blocks the publisher.
type StreamPublisher interface {
	// Publish emits an event to all current subscribers of its organization
	Publish(ctx context.Context, event domain.Event) error

	// Subscribe returns a channel of events for an organization and a
	// cancel function that releases the subscription
	Subscribe(ctx context.Context, orgID string) (<-chan domain.Event, func(), error)
}
