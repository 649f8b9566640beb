package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// Ensure ConversationStore implements the port
var _ driven.ConversationStore = (*ConversationStore)(nil)

// ConversationStore implements driven.ConversationStore backed by PostgreSQL.
// The agent config snapshot and message citations are stored as JSONB.
type ConversationStore struct {
	db *DB
}

// NewConversationStore creates a new ConversationStore
func NewConversationStore(db *DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func (s *ConversationStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	snapshot, err := json.Marshal(conv.AgentConfig)
	if err != nil {
		return fmt.Errorf("marshal agent config: %w", err)
	}

	query := `
		INSERT INTO conversations (id, organization_id, agent_id, visitor_id, agent_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		conv.ID,
		conv.OrganizationID,
		conv.AgentID,
		conv.VisitorID,
		snapshot,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, orgID, id string) (*domain.Conversation, error) {
	query := `
		SELECT id, organization_id, agent_id, visitor_id, agent_config, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND organization_id = $2
	`
	var conv domain.Conversation
	var snapshot []byte
	err := s.db.QueryRowContext(ctx, query, id, orgID).Scan(
		&conv.ID,
		&conv.OrganizationID,
		&conv.AgentID,
		&conv.VisitorID,
		&snapshot,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if err := json.Unmarshal(snapshot, &conv.AgentConfig); err != nil {
		return nil, fmt.Errorf("unmarshal agent config: %w", err)
	}
	return &conv, nil
}

func (s *ConversationStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	citations, err := marshalCitations(msg.Citations)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (
			id, conversation_id, organization_id, role, content, stream_id,
			final, citations, prompt_tokens, completion_tokens, latency_ms,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.OrganizationID,
		msg.Role,
		msg.Content,
		msg.StreamID,
		msg.Final,
		citations,
		msg.PromptTokens,
		msg.CompletionTokens,
		msg.LatencyMillis,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *ConversationStore) UpdateMessage(ctx context.Context, msg *domain.Message) error {
	citations, err := marshalCitations(msg.Citations)
	if err != nil {
		return err
	}

	query := `
		UPDATE messages SET
			content = $1, final = $2, citations = $3, prompt_tokens = $4,
			completion_tokens = $5, latency_ms = $6, updated_at = $7
		WHERE id = $8
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.Content,
		msg.Final,
		citations,
		msg.PromptTokens,
		msg.CompletionTokens,
		msg.LatencyMillis,
		msg.UpdatedAt,
		msg.ID,
	)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *ConversationStore) ListMessages(ctx context.Context, orgID, conversationID string) ([]*domain.Message, error) {
	query := `
		SELECT id, conversation_id, organization_id, role, content, stream_id,
			final, citations, prompt_tokens, completion_tokens, latency_ms,
			created_at, updated_at
		FROM messages
		WHERE conversation_id = $1 AND organization_id = $2
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID, orgID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var citations []byte
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.OrganizationID,
			&msg.Role,
			&msg.Content,
			&msg.StreamID,
			&msg.Final,
			&citations,
			&msg.PromptTokens,
			&msg.CompletionTokens,
			&msg.LatencyMillis,
			&msg.CreatedAt,
			&msg.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(citations) > 0 {
			if err := json.Unmarshal(citations, &msg.Citations); err != nil {
				return nil, fmt.Errorf("unmarshal citations: %w", err)
			}
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

func marshalCitations(citations []domain.Citation) ([]byte, error) {
	if citations == nil {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(citations)
	if err != nil {
		return nil, fmt.Errorf("marshal citations: %w", err)
	}
	return data, nil
}
