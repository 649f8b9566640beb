package mocks

import (
	"context"
	"sync"

	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// MockEmbeddingService returns deterministic vectors for testing
type MockEmbeddingService struct {
	mu sync.Mutex

	ModelName  string
	Dims       int
	EmbedErr   error
	EmbedCalls int

	// TokensPerText is the token usage reported per input text
	TokensPerText int
}

// NewMockEmbeddingService creates a mock with small defaults
func NewMockEmbeddingService() *MockEmbeddingService {
	return &MockEmbeddingService{
		ModelName:     "test-embedding-model",
		Dims:          4,
		TokensPerText: 10,
	}
}

// vectorFor derives a stable non-zero vector from the text content
func (m *MockEmbeddingService) vectorFor(text string) []float32 {
	v := make([]float32, m.Dims)
	for i := range v {
		v[i] = 0.1
	}
	for i, ch := range text {
		v[i%m.Dims] += float32(ch%13) / 13.0
	}
	return v
}

func (m *MockEmbeddingService) Embed(ctx context.Context, texts []string) (*driven.EmbeddingResult, error) {
	m.mu.Lock()
	m.EmbedCalls++
	m.mu.Unlock()
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = m.vectorFor(t)
	}
	return &driven.EmbeddingResult{
		Vectors: vectors,
		Model:   m.ModelName,
		Tokens:  m.TokensPerText * len(texts),
	}, nil
}

func (m *MockEmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	return m.vectorFor(query), nil
}

func (m *MockEmbeddingService) Model() string {
	return m.ModelName
}

func (m *MockEmbeddingService) Dimensions() int {
	return m.Dims
}

// MockCompletionService streams a canned response token by token
type MockCompletionService struct {
	mu sync.Mutex

	// StreamTokens are emitted one at a time by StreamCompletion
	StreamTokens []string
	StreamErr    error

	// CompleteResponse is returned by Complete (the judge path)
	CompleteResponse string
	CompleteErr      error

	Usage driven.CompletionUsage

	StreamCalls   int
	CompleteCalls int
	LastRequest   driven.CompletionRequest
}

// NewMockCompletionService creates a mock with a short canned answer
func NewMockCompletionService() *MockCompletionService {
	return &MockCompletionService{
		StreamTokens: []string{"Hello", ", ", "world", "."},
		Usage:        driven.CompletionUsage{PromptTokens: 20, CompletionTokens: 4},
	}
}

func (m *MockCompletionService) StreamCompletion(ctx context.Context, req driven.CompletionRequest, onToken func(token string) error) (*driven.CompletionResult, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.LastRequest = req
	tokens := make([]string, len(m.StreamTokens))
	copy(tokens, m.StreamTokens)
	err := m.StreamErr
	usage := m.Usage
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}

	var full string
	for _, tok := range tokens {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if sendErr := onToken(tok); sendErr != nil {
			return nil, sendErr
		}
		full += tok
	}
	return &driven.CompletionResult{Text: full, Usage: usage}, nil
}

func (m *MockCompletionService) Complete(ctx context.Context, req driven.CompletionRequest) (*driven.CompletionResult, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.LastRequest = req
	m.mu.Unlock()
	if m.CompleteErr != nil {
		return nil, m.CompleteErr
	}
	return &driven.CompletionResult{Text: m.CompleteResponse, Usage: m.Usage}, nil
}
