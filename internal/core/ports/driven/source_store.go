package driven

import (
	"context"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// SourceStore persists knowledge sources. All reads are scoped by
// organization id; a lookup outside the caller's organization returns
// domain.ErrNotFound rather than leaking existence.
type SourceStore interface {
	// Create persists a new source
	Create(ctx context.Context, source *domain.Source) error

	// Get retrieves a source by id within an organization
	Get(ctx context.Context, orgID, id string) (*domain.Source, error)

	// Update persists source mutations (status, fingerprint, counts)
	Update(ctx context.Context, source *domain.Source) error

	// ListByAgent returns all non-deleted sources for an agent
	ListByAgent(ctx context.Context, orgID, agentID string) ([]*domain.Source, error)

	// SoftDelete sets deletedAt; the source is excluded from retrieval
	// and retraining but its row is retained
	SoftDelete(ctx context.Context, orgID, id string) error
}
