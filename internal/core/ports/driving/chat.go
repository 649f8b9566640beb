package driving

import (
	"context"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// ChatRequest is the chat boundary input
type ChatRequest struct {
	OrganizationID string            `json:"organization_id"`
	AgentID        string            `json:"agent_id"`
	VisitorID      string            `json:"visitor_id"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Messages       []domain.ChatTurn `json:"messages"`

	// SkipJudge bypasses the safety judge for trusted internal calls.
	// Skipping is always logged.
	SkipJudge bool `json:"-"`
}

// TokenSink receives generated tokens as they arrive. The HTTP handler
// implements this over the response writer; a Send error means the client
// disconnected, which stops delivery but not durable persistence.
type TokenSink interface {
	Send(token string) error
}

// ChatResult is returned once a turn is fully persisted
type ChatResult struct {
	ConversationID string            `json:"conversation_id"`
	MessageID      string            `json:"message_id"`
	Content        string            `json:"content"`
	Citations      []domain.Citation `json:"citations,omitempty"`
	JudgeVerdict   domain.Verdict    `json:"judge_verdict"`
}

// ChatService runs one chat turn: admission, retrieval, streamed generation
// with durable checkpoints, judge gate, persistence.
type ChatService interface {
	Stream(ctx context.Context, req ChatRequest, sink TokenSink) (*ChatResult, error)
}
