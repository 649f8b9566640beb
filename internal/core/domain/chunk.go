package domain

import "time"

// Chunk is an immutable unit of embedded text belonging to exactly one
// source. Chunks are never mutated after creation, only superseded: when a
// source's fingerprint changes its old chunks are deleted and new ones
// inserted as a unit.
type Chunk struct {
	ID             string `json:"id"`
	SourceID       string `json:"source_id"`
	OrganizationID string `json:"organization_id"`
	AgentID        string `json:"agent_id"`

	Content string `json:"content"`

	// Embedding is the vector produced by EmbeddingModel. Its length must
	// match the owning agent's configured dimensionality.
	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embedding_model"`

	// Ordering and citation metadata
	Position  int    `json:"position"` // chunk index within the source
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	PageURL   string `json:"page_url,omitempty"` // originating page for website sources

	TokenEstimate int       `json:"token_estimate"`
	CreatedAt     time.Time `json:"created_at"`
}

// RankedChunk pairs a chunk with its retrieval score
type RankedChunk struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"`
}

// Citation is a chunk reference attached to an assistant message
type Citation struct {
	ChunkID  string  `json:"chunk_id"`
	SourceID string  `json:"source_id"`
	PageURL  string  `json:"page_url,omitempty"`
	Score    float64 `json:"score"`
}
