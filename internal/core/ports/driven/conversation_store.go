package driven

import (
	"context"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// ConversationStore persists conversations and their append-only messages.
// Assistant messages are updated in place only while streaming (checkpoint
// content, then finalization); user messages are never touched.
type ConversationStore interface {
	// CreateConversation persists a new conversation with its config snapshot
	CreateConversation(ctx context.Context, conv *domain.Conversation) error

	// GetConversation retrieves a conversation by id within an organization
	GetConversation(ctx context.Context, orgID, id string) (*domain.Conversation, error)

	// AppendMessage persists a new message
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// UpdateMessage persists checkpoint content, finalization, citations,
	// and token/latency metadata for a streaming assistant message
	UpdateMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns a conversation's messages in creation order
	ListMessages(ctx context.Context, orgID, conversationID string) ([]*domain.Message, error)
}
