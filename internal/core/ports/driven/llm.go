package driven

import (
	"context"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
)

// CompletionRequest describes one generation call
type CompletionRequest struct {
	Model       string
	Temperature float64
	MaxTokens   int

	// SystemPrompt is sent as the system message
	SystemPrompt string

	// Turns are the ordered conversation messages
	Turns []domain.ChatTurn
}

// CompletionUsage is the provider-reported token accounting for one call
type CompletionUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResult is the full outcome of a generation call
type CompletionResult struct {
	Text  string
	Usage CompletionUsage
}

// CompletionService generates text via an external model-serving API.
// Failures surface wrapped in domain.ErrExternalService.
type CompletionService interface {
	// StreamCompletion streams generated tokens through onToken as they
	// arrive and returns the full result once generation completes. An
	// onToken error aborts the stream.
	StreamCompletion(ctx context.Context, req CompletionRequest, onToken func(token string) error) (*CompletionResult, error)

	// Complete runs a non-streaming generation call (used by the judge)
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}
