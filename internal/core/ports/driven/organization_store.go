package driven

import (
	"context"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// OrganizationStore persists tenants and their agents
type OrganizationStore interface {
	// GetOrganization retrieves an organization by id
	GetOrganization(ctx context.Context, id string) (*domain.Organization, error)

	// GetAgent retrieves an agent by id within an organization
	GetAgent(ctx context.Context, orgID, agentID string) (*domain.Agent, error)

	// UpdateAgent persists agent mutations (needsRetraining)
	UpdateAgent(ctx context.Context, agent *domain.Agent) error

	// ConsumeMessageCredit atomically decrements the organization's message
	// credits, returning domain.ErrCreditsExhausted when none remain
	ConsumeMessageCredit(ctx context.Context, orgID string) error
}
