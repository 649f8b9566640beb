package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// DefaultRetrievalK is the number of chunks retrieved per query when the
// caller does not override it.
const DefaultRetrievalK = 5

// Retriever answers "which chunks are relevant to this query" for one
// agent. The vector index filters by tenant fields; the retriever re-checks
// ownership and drops chunks of soft-deleted sources after loading them.
type Retriever struct {
	chunks    driven.ChunkStore
	sources   driven.SourceStore
	index     driven.VectorIndex
	embedding driven.EmbeddingService
	logger    *slog.Logger
}

// RetrieverConfig holds dependencies for Retriever.
type RetrieverConfig struct {
	ChunkStore  driven.ChunkStore
	SourceStore driven.SourceStore
	Index       driven.VectorIndex
	Embedding   driven.EmbeddingService
	Logger      *slog.Logger
}

// NewRetriever creates a new retriever.
func NewRetriever(cfg RetrieverConfig) *Retriever {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		chunks:    cfg.ChunkStore,
		sources:   cfg.SourceStore,
		index:     cfg.Index,
		embedding: cfg.Embedding,
		logger:    logger,
	}
}

// Retrieve embeds the query, searches the index scoped to the organization
// and agent, and loads the matching chunks in score order. An empty result
// is valid: the caller answers from the system prompt alone.
func (r *Retriever) Retrieve(ctx context.Context, orgID, agentID, query string, k int) ([]domain.RankedChunk, error) {
	if k <= 0 {
		k = DefaultRetrievalK
	}

	queryVector, err := r.embedding.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := r.index.Search(ctx, orgID, agentID, queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ChunkID
		scores[hit.ChunkID] = hit.Score
	}

	chunks, err := r.chunks.GetByIDs(ctx, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	// Ownership and liveness are re-checked on the loaded rows even though
	// the index already filtered: a stale index entry must never leak
	// another tenant's or a deleted source's content.
	deletedSources := make(map[string]bool)
	var ranked []domain.RankedChunk
	for _, chunk := range chunks {
		if chunk.OrganizationID != orgID || chunk.AgentID != agentID {
			r.logger.Error("index returned chunk outside tenant scope",
				"chunk_id", chunk.ID, "org_id", orgID)
			continue
		}
		deleted, ok := deletedSources[chunk.SourceID]
		if !ok {
			deleted, err = r.sourceDeleted(ctx, orgID, chunk.SourceID)
			if err != nil {
				return nil, err
			}
			deletedSources[chunk.SourceID] = deleted
		}
		if deleted {
			continue
		}
		ranked = append(ranked, domain.RankedChunk{
			Chunk: chunk,
			Score: scores[chunk.ID],
		})
	}
	return ranked, nil
}

func (r *Retriever) sourceDeleted(ctx context.Context, orgID, sourceID string) (bool, error) {
	source, err := r.sources.Get(ctx, orgID, sourceID)
	if errors.Is(err, domain.ErrNotFound) {
		// Row gone entirely; treat like deleted
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check source liveness: %w", err)
	}
	return source.IsDeleted(), nil
}
