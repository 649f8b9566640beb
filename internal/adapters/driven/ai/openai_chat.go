package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// Ensure OpenAIChat implements CompletionService
var _ driven.CompletionService = (*OpenAIChat)(nil)

// Default configuration values
const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultChatModel   = "gpt-4o-mini"
	DefaultChatTimeout = 120 * time.Second
)

// ChatConfig holds configuration for the OpenAI chat service
type ChatConfig struct {
	// APIKey is the OpenAI API key (required)
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the fallback model when a request does not name one
	Model string

	// Timeout is the request timeout (default: 120s)
	Timeout time.Duration
}

// OpenAIChat implements CompletionService against the OpenAI chat API,
// streaming tokens over SSE and falling back to a plain completion call
// for non-streaming consumers.
type OpenAIChat struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewOpenAIChat creates a new OpenAI chat service
func NewOpenAIChat(cfg ChatConfig) (*OpenAIChat, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultChatTimeout
	}

	return &OpenAIChat{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

// chatCompletionRequest is the OpenAI /chat/completions request format
type chatCompletionRequest struct {
	Model         string              `json:"model"`
	Messages      []chatCompletionMsg `json:"messages"`
	MaxTokens     int                 `json:"max_tokens,omitempty"`
	Temperature   float64             `json:"temperature,omitempty"`
	Stream        bool                `json:"stream,omitempty"`
	StreamOptions *streamOptions      `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatCompletionMsg is the OpenAI chat message format
type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatCompletionResponse is the non-streaming response format
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage completionUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// chatCompletionChunk is one SSE data frame of a streaming response
type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *completionUsage `json:"usage,omitempty"`
}

// StreamCompletion streams generated tokens through onToken as they arrive.
// An onToken error aborts the stream and is returned as-is.
func (s *OpenAIChat) StreamCompletion(ctx context.Context, req driven.CompletionRequest, onToken func(token string) error) (*driven.CompletionResult, error) {
	body := s.requestBody(req)
	body.Stream = true
	body.StreamOptions = &streamOptions{IncludeUsage: true}

	resp, err := s.send(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var text strings.Builder
	var usage completionUsage

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("%w: parse stream chunk: %v", domain.ErrExternalService, err)
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		token := chunk.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		if err := onToken(token); err != nil {
			return nil, err
		}
		text.WriteString(token)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read stream: %v", domain.ErrExternalService, err)
	}

	return &driven.CompletionResult{
		Text: text.String(),
		Usage: driven.CompletionUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
		},
	}, nil
}

// Complete runs a non-streaming generation call
func (s *OpenAIChat) Complete(ctx context.Context, req driven.CompletionRequest) (*driven.CompletionResult, error) {
	resp, err := s.send(ctx, s.requestBody(req))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrExternalService, err)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrExternalService, err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrExternalService, chatResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: chat API returned status %d", domain.ErrExternalService, resp.StatusCode)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response choices returned", domain.ErrExternalService)
	}

	return &driven.CompletionResult{
		Text: chatResp.Choices[0].Message.Content,
		Usage: driven.CompletionUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
		},
	}, nil
}

func (s *OpenAIChat) requestBody(req driven.CompletionRequest) chatCompletionRequest {
	model := req.Model
	if model == "" {
		model = s.model
	}

	messages := make([]chatCompletionMsg, 0, len(req.Turns)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, chatCompletionMsg{Role: "system", Content: req.SystemPrompt})
	}
	for _, turn := range req.Turns {
		messages = append(messages, chatCompletionMsg{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}

	return chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

func (s *OpenAIChat) send(ctx context.Context, body chatCompletionRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.baseURL+"/chat/completions",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: chat request: %v", domain.ErrExternalService, err)
	}
	return resp, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%w: chat API returned status %d: %s",
		domain.ErrExternalService, resp.StatusCode, strings.TrimSpace(string(body)))
}
