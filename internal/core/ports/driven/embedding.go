package driven

import "context"

// EmbeddingResult is the output of one batch embedding call
type EmbeddingResult struct {
	// Vectors is parallel to the input texts, one vector per input
	Vectors [][]float32

	// Model is the embedding model identifier that produced the vectors.
	// Models are never silently swapped for a given agent.
	Model string

	// Tokens is the provider-reported token count for the batch, recorded
	// on the usage ledger
	Tokens int
}

// EmbeddingService generates embeddings via an external model-serving API.
// Batching exists purely for throughput; a partial failure fails the whole
// batch call and the caller retries the batch via the job tracker.
type EmbeddingService interface {
	// Embed generates embeddings for multiple texts, all-or-nothing
	Embed(ctx context.Context, texts []string) (*EmbeddingResult, error)

	// EmbedQuery generates an embedding for a search query
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Model returns the model identifier being used
	Model() string

	// Dimensions returns the embedding dimension size
	Dimensions() int
}
