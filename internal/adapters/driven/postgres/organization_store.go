package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// Ensure OrganizationStore implements the port
var _ driven.OrganizationStore = (*OrganizationStore)(nil)

// OrganizationStore implements driven.OrganizationStore backed by PostgreSQL
type OrganizationStore struct {
	db *DB
}

// NewOrganizationStore creates a new OrganizationStore
func NewOrganizationStore(db *DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

func (s *OrganizationStore) GetOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	query := `
		SELECT id, name, plan_tier, message_credits, rate_limit_tokens,
			rate_limit_last_refill, guardrails, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`
	var org domain.Organization
	var guardrails []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.PlanTier,
		&org.MessageCredits,
		&org.RateLimitTokens,
		&org.RateLimitLastRefill,
		&guardrails,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	if len(guardrails) > 0 {
		if err := json.Unmarshal(guardrails, &org.Guardrails); err != nil {
			return nil, fmt.Errorf("unmarshal guardrails: %w", err)
		}
	}
	return &org, nil
}

func (s *OrganizationStore) GetAgent(ctx context.Context, orgID, agentID string) (*domain.Agent, error) {
	query := `
		SELECT id, organization_id, name, system_prompt, model, temperature,
			embedding_model, embedding_dimensions, needs_retraining,
			created_at, updated_at
		FROM agents
		WHERE id = $1 AND organization_id = $2
	`
	var agent domain.Agent
	err := s.db.QueryRowContext(ctx, query, agentID, orgID).Scan(
		&agent.ID,
		&agent.OrganizationID,
		&agent.Name,
		&agent.SystemPrompt,
		&agent.Model,
		&agent.Temperature,
		&agent.EmbeddingModel,
		&agent.EmbeddingDimensions,
		&agent.NeedsRetraining,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return &agent, nil
}

func (s *OrganizationStore) UpdateAgent(ctx context.Context, agent *domain.Agent) error {
	query := `
		UPDATE agents SET
			name = $1, system_prompt = $2, model = $3, temperature = $4,
			embedding_model = $5, embedding_dimensions = $6,
			needs_retraining = $7, updated_at = $8
		WHERE id = $9 AND organization_id = $10
	`
	result, err := s.db.ExecContext(ctx, query,
		agent.Name,
		agent.SystemPrompt,
		agent.Model,
		agent.Temperature,
		agent.EmbeddingModel,
		agent.EmbeddingDimensions,
		agent.NeedsRetraining,
		agent.UpdatedAt,
		agent.ID,
		agent.OrganizationID,
	)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
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

// ConsumeMessageCredit decrements one credit only while credits remain. The
// conditional UPDATE is the atomicity guarantee: concurrent consumers can
// never drive the balance negative.
func (s *OrganizationStore) ConsumeMessageCredit(ctx context.Context, orgID string) error {
	query := `
		UPDATE organizations
		SET message_credits = message_credits - 1, updated_at = NOW()
		WHERE id = $1 AND message_credits > 0
	`
	result, err := s.db.ExecContext(ctx, query, orgID)
	if err != nil {
		return fmt.Errorf("consume credit: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	// Distinguish an unknown organization from an exhausted balance
	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM organizations WHERE id = $1)`, orgID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check organization: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrCreditsExhausted
}
