package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// Ensure ChunkStore implements the port
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore implements driven.ChunkStore backed by PostgreSQL
type ChunkStore struct {
	db *DB
}

// NewChunkStore creates a new ChunkStore
func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

// ReplaceForSource swaps a source's chunk set inside one transaction, so
// readers never observe a mix of old and new chunks.
func (s *ChunkStore) ReplaceForSource(ctx context.Context, sourceID string, chunks []*domain.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	query := `
		INSERT INTO chunks (
			id, source_id, organization_id, agent_id, content, embedding,
			embedding_model, position, start_char, end_char, page_url,
			token_estimate, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		_, err := stmt.ExecContext(ctx,
			chunk.ID,
			chunk.SourceID,
			chunk.OrganizationID,
			chunk.AgentID,
			chunk.Content,
			pq.Float32Array(chunk.Embedding),
			chunk.EmbeddingModel,
			chunk.Position,
			chunk.StartChar,
			chunk.EndChar,
			chunk.PageURL,
			chunk.TokenEstimate,
			chunk.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const chunkColumns = `id, source_id, organization_id, agent_id, content,
	embedding, embedding_model, position, start_char, end_char, page_url,
	token_estimate, created_at`

// GetByIDs loads chunks by id within an organization, preserving the
// requested order. Missing ids are skipped.
func (s *ChunkStore) GetByIDs(ctx context.Context, orgID string, ids []string) ([]*domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE organization_id = $1 AND id = ANY($2)`
	rows, err := s.db.QueryContext(ctx, query, orgID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("select chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*domain.Chunk, len(ids))
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[chunk.ID] = chunk
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ordered := make([]*domain.Chunk, 0, len(byID))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			ordered = append(ordered, chunk)
		}
	}
	return ordered, nil
}

func (s *ChunkStore) GetBySource(ctx context.Context, sourceID string) ([]*domain.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE source_id = $1 ORDER BY position ASC`
	rows, err := s.db.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("select chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *ChunkStore) DeleteBySource(ctx context.Context, sourceID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var embedding pq.Float32Array

	err := row.Scan(
		&chunk.ID,
		&chunk.SourceID,
		&chunk.OrganizationID,
		&chunk.AgentID,
		&chunk.Content,
		&embedding,
		&chunk.EmbeddingModel,
		&chunk.Position,
		&chunk.StartChar,
		&chunk.EndChar,
		&chunk.PageURL,
		&chunk.TokenEstimate,
		&chunk.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	chunk.Embedding = []float32(embedding)
	return &chunk, nil
}
