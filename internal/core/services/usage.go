package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// UsageRecorder writes billing events to the append-only ledger. Every write
// carries an idempotency key so a retried pipeline step never double-bills.
type UsageRecorder struct {
	store  driven.UsageStore
	logger *slog.Logger
}

// UsageRecorderConfig holds dependencies for UsageRecorder.
type UsageRecorderConfig struct {
	Store  driven.UsageStore
	Logger *slog.Logger
}

// NewUsageRecorder creates a new usage recorder.
func NewUsageRecorder(cfg UsageRecorderConfig) *UsageRecorder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageRecorder{store: cfg.Store, logger: logger}
}

// RecordEmbedding records the token cost of embedding a source at a given
// fingerprint. Retrying the same source+fingerprint is a no-op.
func (r *UsageRecorder) RecordEmbedding(ctx context.Context, orgID, sourceID, fingerprint, model string, tokens int) error {
	event := domain.NewUsageEvent(orgID, domain.UsageKindEmbedding,
		domain.EmbedUsageKey(sourceID, fingerprint), tokens)
	event.Metadata = map[string]string{
		"source_id": sourceID,
		"model":     model,
	}
	if _, err := r.store.Record(ctx, event); err != nil {
		return fmt.Errorf("failed to record embedding usage: %w", err)
	}
	return nil
}

// RecordChatTokens records the token cost of one chat turn, keyed by the
// assistant message id.
func (r *UsageRecorder) RecordChatTokens(ctx context.Context, orgID, messageID string, usage driven.CompletionUsage) error {
	event := domain.NewUsageEvent(orgID, domain.UsageKindChatTokens,
		domain.MessageUsageKey(messageID), usage.PromptTokens+usage.CompletionTokens)
	event.Metadata = map[string]string{
		"message_id":        messageID,
		"prompt_tokens":     strconv.Itoa(usage.PromptTokens),
		"completion_tokens": strconv.Itoa(usage.CompletionTokens),
	}
	if _, err := r.store.Record(ctx, event); err != nil {
		return fmt.Errorf("failed to record chat usage: %w", err)
	}
	return nil
}
