package driven

import (
	"context"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// ChunkStore persists embedded chunks. Chunks are immutable: re-embedding a
// source replaces its full chunk set as a unit.
type ChunkStore interface {
	// ReplaceForSource atomically deletes the source's existing chunks and
	// inserts the new set
	ReplaceForSource(ctx context.Context, sourceID string, chunks []*domain.Chunk) error

	// GetByIDs loads chunks by id within an organization, preserving the
	// requested order. Missing ids are skipped, not errors.
	GetByIDs(ctx context.Context, orgID string, ids []string) ([]*domain.Chunk, error)

	// GetBySource returns a source's chunks ordered by position
	GetBySource(ctx context.Context, sourceID string) ([]*domain.Chunk, error)

	// DeleteBySource removes all chunks for a source
	DeleteBySource(ctx context.Context, sourceID string) error
}
