package driving

import (
	"context"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// JobService exposes job status and operator actions
type JobService interface {
	// Get retrieves a job, enforcing the organization boundary
	Get(ctx context.Context, orgID, jobID string) (*domain.Job, error)

	// Cancel marks a job cancelled; in-flight steps observe this
	// cooperatively between steps
	Cancel(ctx context.Context, orgID, jobID string) error

	// Retry moves a terminally failed job back to pending
	// (operator-triggered; never automatic)
	Retry(ctx context.Context, orgID, jobID string) error

	// ListStuck returns running jobs with stale heartbeats
	ListStuck(ctx context.Context) ([]*domain.Job, error)
}

// ConversationService exposes the poll/resume read path
type ConversationService interface {
	// ListMessages returns a conversation's messages in order, including
	// the latest durable checkpoint content of in-flight messages
	ListMessages(ctx context.Context, orgID, conversationID string) ([]*domain.Message, error)
}
