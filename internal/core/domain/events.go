package domain

import "time"

// EventType identifies a published state-change event. Components publish
// explicitly; interested consumers (polling endpoints, websockets) subscribe
// rather than relying on implicit store reactivity.
type EventType string

const (
	// EventSourceStatus is published when a source changes lifecycle status
	EventSourceStatus EventType = "source.status"
	// EventStreamCheckpoint is published for each durable checkpoint of a
	// streaming assistant message
	EventStreamCheckpoint EventType = "stream.checkpoint"
	// EventStreamDone is published when a streamed message is finalized
	EventStreamDone EventType = "stream.done"
	// EventJobStuck is published by the monitor for stale-heartbeat jobs
	EventJobStuck EventType = "job.stuck"
)

// Event is a state-change notification
type Event struct {
	Type           EventType `json:"type"`
	OrganizationID string    `json:"organization_id"`

	// Subject is the id of the entity the event is about: source id,
	// stream id, or job id depending on Type.
	Subject string `json:"subject"`

	// Payload carries small event-specific fields (status, checkpoint text)
	Payload map[string]string `json:"payload,omitempty"`

	At time.Time `json:"at"`
}
