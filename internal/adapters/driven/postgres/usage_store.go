package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// Ensure UsageStore implements the port
var _ driven.UsageStore = (*UsageStore)(nil)

// UsageStore implements driven.UsageStore backed by PostgreSQL. The unique
// idempotency key makes Record insert-if-absent: a retried pipeline step
// lands on the existing ledger row instead of double-billing.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new UsageStore
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

func (s *UsageStore) Record(ctx context.Context, event *domain.UsageEvent) (*domain.UsageEvent, error) {
	metadata, err := marshalMetadata(event.Metadata)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO usage_events (id, organization_id, kind, idempotency_key, tokens, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.OrganizationID,
		event.Kind,
		event.IdempotencyKey,
		event.Tokens,
		metadata,
		event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert usage event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 1 {
		cp := *event
		return &cp, nil
	}
	return s.getByKey(ctx, event.IdempotencyKey)
}

func (s *UsageStore) getByKey(ctx context.Context, key string) (*domain.UsageEvent, error) {
	query := `
		SELECT id, organization_id, kind, idempotency_key, tokens, metadata, created_at
		FROM usage_events
		WHERE idempotency_key = $1
	`
	return scanUsageEvent(s.db.QueryRowContext(ctx, query, key))
}

func (s *UsageStore) ListByOrganization(ctx context.Context, orgID string, limit int) ([]*domain.UsageEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, organization_id, kind, idempotency_key, tokens, metadata, created_at
		FROM usage_events
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage events: %w", err)
	}
	defer rows.Close()

	var events []*domain.UsageEvent
	for rows.Next() {
		event, err := scanUsageEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanUsageEvent(row rowScanner) (*domain.UsageEvent, error) {
	var event domain.UsageEvent
	var metadata []byte
	err := row.Scan(
		&event.ID,
		&event.OrganizationID,
		&event.Kind,
		&event.IdempotencyKey,
		&event.Tokens,
		&metadata,
		&event.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan usage event: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &event, nil
}

func marshalMetadata(metadata map[string]string) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}
