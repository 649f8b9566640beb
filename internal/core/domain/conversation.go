package domain

import "time"

// MessageRole identifies the author of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Conversation groups the messages of one visitor session with an agent.
// It snapshots the agent's config at creation.
type Conversation struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	AgentID        string         `json:"agent_id"`
	VisitorID      string         `json:"visitor_id"`
	AgentConfig    ConfigSnapshot `json:"agent_config"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewConversation creates a conversation snapshotting the agent's config
func NewConversation(agent *Agent, visitorID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:             GenerateID(),
		OrganizationID: agent.OrganizationID,
		AgentID:        agent.ID,
		VisitorID:      visitorID,
		AgentConfig:    agent.Snapshot(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Message is an append-only conversation entry. Assistant messages are
// written incrementally during streaming: Content holds the latest durable
// checkpoint until Final is set, at which point it is the delivered text.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	OrganizationID string      `json:"organization_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`

	// StreamID enables independent resumption of the durable stream for a
	// message that is still being generated.
	StreamID string `json:"stream_id,omitempty"`
	Final    bool   `json:"final"`

	Citations []Citation `json:"citations,omitempty"`

	// Token and latency metadata
	PromptTokens     int   `json:"prompt_tokens,omitempty"`
	CompletionTokens int   `json:"completion_tokens,omitempty"`
	LatencyMillis    int64 `json:"latency_ms,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatTurn is one ordered role/content pair supplied at the chat boundary
type ChatTurn struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}
