package services

import (
	"context"
	"errors"
	"testing"

	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven/mocks"
)

func TestRecordEmbeddingIsIdempotent(t *testing.T) {
	store := mocks.NewMockUsageStore()
	recorder := NewUsageRecorder(UsageRecorderConfig{Store: store})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := recorder.RecordEmbedding(ctx, "org-1", "src-1", "fp-abc", "text-embedding-3-small", 120); err != nil {
			t.Fatalf("record %d failed: %v", i, err)
		}
	}

	if store.Count() != 1 {
		t.Errorf("expected one ledger row for a retried step, got %d", store.Count())
	}

	events, err := store.ListByOrganization(ctx, "org-1", 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if events[0].Tokens != 120 {
		t.Errorf("expected 120 tokens, got %d", events[0].Tokens)
	}
	if events[0].Metadata["source_id"] != "src-1" {
		t.Errorf("expected source metadata, got %v", events[0].Metadata)
	}
}

func TestRecordEmbedding_NewFingerprintIsNewRow(t *testing.T) {
	store := mocks.NewMockUsageStore()
	recorder := NewUsageRecorder(UsageRecorderConfig{Store: store})
	ctx := context.Background()

	if err := recorder.RecordEmbedding(ctx, "org-1", "src-1", "fp-old", "m", 100); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := recorder.RecordEmbedding(ctx, "org-1", "src-1", "fp-new", "m", 80); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if store.Count() != 2 {
		t.Errorf("expected distinct rows per fingerprint, got %d", store.Count())
	}
}

func TestRecordChatTokens(t *testing.T) {
	store := mocks.NewMockUsageStore()
	recorder := NewUsageRecorder(UsageRecorderConfig{Store: store})
	ctx := context.Background()

	usage := driven.CompletionUsage{PromptTokens: 200, CompletionTokens: 50}
	if err := recorder.RecordChatTokens(ctx, "org-1", "msg-1", usage); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	// A retried turn with the same message id must not double-bill.
	if err := recorder.RecordChatTokens(ctx, "org-1", "msg-1", usage); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	if store.Count() != 1 {
		t.Errorf("expected one ledger row, got %d", store.Count())
	}

	events, err := store.ListByOrganization(ctx, "org-1", 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if events[0].Tokens != 250 {
		t.Errorf("expected 250 total tokens, got %d", events[0].Tokens)
	}
}

func TestRecordEmbedding_StoreError(t *testing.T) {
	store := mocks.NewMockUsageStore()
	store.RecordErr = errors.New("ledger unavailable")
	recorder := NewUsageRecorder(UsageRecorderConfig{Store: store})

	err := recorder.RecordEmbedding(context.Background(), "org-1", "src-1", "fp", "m", 10)
	if err == nil {
		t.Fatal("expected error from failing store")
	}
}
