package memory

import (
	"context"
	"testing"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

func TestPublishAndSubscribe(t *testing.T) {
	p := NewStreamPublisher()
	ctx := context.Background()

	events, cancel, err := p.Subscribe(ctx, "org-1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	err = p.Publish(ctx, domain.Event{
		Type:           domain.EventSourceStatus,
		OrganizationID: "org-1",
		Subject:        "src-1",
		Payload:        map[string]string{"status": "ready"},
		At:             time.Now(),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case event := <-events:
		if event.Subject != "src-1" {
			t.Errorf("expected subject src-1, got %s", event.Subject)
		}
		if event.Payload["status"] != "ready" {
			t.Errorf("expected ready payload, got %v", event.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestOrganizationIsolation(t *testing.T) {
	p := NewStreamPublisher()
	ctx := context.Background()

	events, cancel, err := p.Subscribe(ctx, "org-2")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	if err := p.Publish(ctx, domain.Event{Type: domain.EventJobStuck, OrganizationID: "org-1", Subject: "job-1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case event := <-events:
		t.Errorf("expected no cross-organization delivery, got %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelClosesChannel(t *testing.T) {
	p := NewStreamPublisher()

	events, cancel, err := p.Subscribe(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	cancel()
	cancel() // idempotent

	if _, open := <-events; open {
		t.Error("expected channel to close after cancel")
	}

	// Publishing after cancel must not panic or deliver.
	if err := p.Publish(context.Background(), domain.Event{OrganizationID: "org-1"}); err != nil {
		t.Fatalf("publish after cancel failed: %v", err)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	p := NewStreamPublisher()
	ctx := context.Background()

	_, cancel, err := p.Subscribe(ctx, "org-1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	// Overfill the buffer; publishes past capacity drop instead of blocking.
	for i := 0; i < subscriberBuffer*2; i++ {
		if err := p.Publish(ctx, domain.Event{OrganizationID: "org-1"}); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}
}
