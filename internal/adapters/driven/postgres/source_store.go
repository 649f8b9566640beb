package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// Ensure SourceStore implements the port
var _ driven.SourceStore = (*SourceStore)(nil)

// SourceStore implements driven.SourceStore backed by PostgreSQL
type SourceStore struct {
	db *DB
}

// NewSourceStore creates a new SourceStore
func NewSourceStore(db *DB) *SourceStore {
	return &SourceStore{db: db}
}

const sourceColumns = `id, organization_id, agent_id, name, type, status,
	content, url, question, answer, fingerprint, size_bytes, chunk_count,
	error_message, created_at, updated_at, deleted_at`

func (s *SourceStore) Create(ctx context.Context, source *domain.Source) error {
	query := `
		INSERT INTO sources (
			id, organization_id, agent_id, name, type, status,
			content, url, question, answer, fingerprint, size_bytes,
			chunk_count, error_message, created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := s.db.ExecContext(ctx, query,
		source.ID,
		source.OrganizationID,
		source.AgentID,
		source.Name,
		source.Type,
		source.Status,
		source.Content,
		source.URL,
		source.Question,
		source.Answer,
		source.Fingerprint,
		source.SizeBytes,
		source.ChunkCount,
		source.ErrorMsg,
		source.CreatedAt,
		source.UpdatedAt,
		nullTime(source.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

func (s *SourceStore) Get(ctx context.Context, orgID, id string) (*domain.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE id = $1 AND organization_id = $2`
	return s.scanSource(s.db.QueryRowContext(ctx, query, id, orgID))
}

func (s *SourceStore) Update(ctx context.Context, source *domain.Source) error {
	query := `
		UPDATE sources SET
			name = $1, status = $2, content = $3, url = $4, question = $5,
			answer = $6, fingerprint = $7, size_bytes = $8, chunk_count = $9,
			error_message = $10, updated_at = $11, deleted_at = $12
		WHERE id = $13 AND organization_id = $14
	`
	result, err := s.db.ExecContext(ctx, query,
		source.Name,
		source.Status,
		source.Content,
		source.URL,
		source.Question,
		source.Answer,
		source.Fingerprint,
		source.SizeBytes,
		source.ChunkCount,
		source.ErrorMsg,
		source.UpdatedAt,
		nullTime(source.DeletedAt),
		source.ID,
		source.OrganizationID,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
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

func (s *SourceStore) ListByAgent(ctx context.Context, orgID, agentID string) ([]*domain.Source, error) {
	query := `
		SELECT ` + sourceColumns + `
		FROM sources
		WHERE organization_id = $1 AND agent_id = $2 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID, agentID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []*domain.Source
	for rows.Next() {
		source, err := s.scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (s *SourceStore) SoftDelete(ctx context.Context, orgID, id string) error {
	query := `
		UPDATE sources SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, id, orgID)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SourceStore) scanSource(row rowScanner) (*domain.Source, error) {
	var source domain.Source
	var deletedAt sql.NullTime

	err := row.Scan(
		&source.ID,
		&source.OrganizationID,
		&source.AgentID,
		&source.Name,
		&source.Type,
		&source.Status,
		&source.Content,
		&source.URL,
		&source.Question,
		&source.Answer,
		&source.Fingerprint,
		&source.SizeBytes,
		&source.ChunkCount,
		&source.ErrorMsg,
		&source.CreatedAt,
		&source.UpdatedAt,
		&deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	source.DeletedAt = timePtr(deletedAt)
	return &source, nil
}
