package driving

import (
	"context"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// RegisterSourceRequest creates a source prior to ingestion
type RegisterSourceRequest struct {
	OrganizationID string            `json:"organization_id"`
	AgentID        string            `json:"agent_id"`
	Name           string            `json:"name"`
	Type           domain.SourceType `json:"type"`
	Content        string            `json:"content,omitempty"`
	URL            string            `json:"url,omitempty"`
	Question       string            `json:"question,omitempty"`
	Answer         string            `json:"answer,omitempty"`
}

// TriggerIngestRequest enqueues an ingestion job for a source. The caller
// does not block for completion; job status is read back asynchronously.
type TriggerIngestRequest struct {
	OrganizationID string `json:"organization_id"`
	AgentID        string `json:"agent_id"`
	SourceID       string `json:"source_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Force          bool   `json:"force,omitempty"`
}

// SourceService manages the source lifecycle at the trigger boundary
type SourceService interface {
	// Register creates a pending source
	Register(ctx context.Context, req RegisterSourceRequest) (*domain.Source, error)

	// Get retrieves a source within an organization
	Get(ctx context.Context, orgID, id string) (*domain.Source, error)

	// ListByAgent returns an agent's live sources
	ListByAgent(ctx context.Context, orgID, agentID string) ([]*domain.Source, error)

	// Delete soft-deletes a source and removes its vectors from the index
	Delete(ctx context.Context, orgID, id string) error

	// TriggerIngest creates (or returns the existing) ingestion job for the
	// source, keyed by the caller's idempotency key
	TriggerIngest(ctx context.Context, req TriggerIngestRequest) (*domain.Job, error)
}
