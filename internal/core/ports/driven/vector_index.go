package driven

import (
	"context"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// VectorHit is one kNN search result
type VectorHit struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// VectorIndex is the provided k-nearest-neighbor primitive. Tenant filtering
// happens inside the index query (organization and agent are index fields),
// and again at the retrieval layer as defense in depth.
type VectorIndex interface {
	// Upsert writes chunks and their embeddings to the index
	Upsert(ctx context.Context, chunks []*domain.Chunk) error

	// Search returns the k nearest chunk ids with scores, filtered to the
	// given organization and agent
	Search(ctx context.Context, orgID, agentID string, queryVector []float32, k int) ([]VectorHit, error)

	// DeleteBySource removes all indexed chunks for a source
	DeleteBySource(ctx context.Context, sourceID string) error

	// HealthCheck verifies the index is reachable
	HealthCheck(ctx context.Context) error
}
