package driven

import (
	"context"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// UsageStore is the append-only billing ledger
type UsageStore interface {
	// Record inserts the event unless a row with its idempotency key
	// already exists, in which case the existing row is returned unchanged.
	// Rows are never updated or deleted.
	Record(ctx context.Context, event *domain.UsageEvent) (*domain.UsageEvent, error)

	// ListByOrganization returns an organization's ledger rows, newest first
	ListByOrganization(ctx context.Context, orgID string, limit int) ([]*domain.UsageEvent, error)
}
