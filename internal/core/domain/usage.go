package domain

import (
	"fmt"
	"time"
)

// UsageKind identifies what a usage event bills for
type UsageKind string

const (
	UsageKindEmbedding  UsageKind = "embedding"
	UsageKindChatTokens UsageKind = "chat_tokens"
)

// UsageEvent is an append-only ledger row. Rows are keyed by an idempotency
// key and never updated or deleted; the ledger is the source of truth for
// billing reconciliation.
type UsageEvent struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Kind           UsageKind `json:"kind"`

	// IdempotencyKey guarantees retried steps never double-bill,
	// e.g. "source:{id}:embed:{fingerprint}".
	IdempotencyKey string `json:"idempotency_key"`

	Tokens   int               `json:"tokens"`
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewUsageEvent creates a ledger row ready for recording
func NewUsageEvent(orgID string, kind UsageKind, idempotencyKey string, tokens int) *UsageEvent {
	return &UsageEvent{
		ID:             GenerateID(),
		OrganizationID: orgID,
		Kind:           kind,
		IdempotencyKey: idempotencyKey,
		Tokens:         tokens,
		CreatedAt:      time.Now(),
	}
}

// EmbedUsageKey builds the idempotency key for a source embedding pass
func EmbedUsageKey(sourceID, fingerprint string) string {
	return fmt.Sprintf("source:%s:embed:%s", sourceID, fingerprint)
}

// MessageUsageKey builds the idempotency key for one chat turn
func MessageUsageKey(messageID string) string {
	return fmt.Sprintf("message:%s:tokens", messageID)
}
