package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ driven.StreamPublisher = (*StreamPublisher)(nil)

const eventChannelPrefix = "openbase:events:"

// StreamPublisher implements driven.StreamPublisher on Redis pub/sub with
// one channel per organization. Delivery is fire-and-forget: subscribers
// that fall behind miss events rather than blocking publishers.
type StreamPublisher struct {
	client *redis.Client
	logger *slog.Logger
}

// StreamPublisherConfig holds configuration for StreamPublisher
type StreamPublisherConfig struct {
	Client *redis.Client
	Logger *slog.Logger
}

// NewStreamPublisher creates a new Redis-backed StreamPublisher
func NewStreamPublisher(cfg StreamPublisherConfig) *StreamPublisher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamPublisher{client: cfg.Client, logger: logger}
}

func (p *StreamPublisher) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	channel := eventChannelPrefix + event.OrganizationID
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (p *StreamPublisher) Subscribe(ctx context.Context, orgID string) (<-chan domain.Event, func(), error) {
	channel := eventChannelPrefix + orgID
	sub := p.client.Subscribe(ctx, channel)

	// Confirm the subscription before handing out the channel so callers
	// never miss events published right after Subscribe returns.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	events := make(chan domain.Event, 16)
	go func() {
		defer close(events)
		for msg := range sub.Channel() {
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				p.logger.Warn("dropping malformed event", "channel", channel, "error", err)
				continue
			}
			select {
			case events <- event:
			default:
				p.logger.Warn("dropping event for slow subscriber", "channel", channel, "type", event.Type)
			}
		}
	}()

	cancel := func() {
		_ = sub.Close()
	}
	return events, cancel, nil
}
