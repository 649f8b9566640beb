package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

func sseServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestNewOpenAIChat_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIChat(ChatConfig{})
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestOpenAIChat_StreamCompletion(t *testing.T) {
	server := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Hello"}}]}`,
		`{"choices":[{"delta":{"content":", "}}]}`,
		`{"choices":[{"delta":{"content":"world."}}]}`,
		`{"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`,
	})
	defer server.Close()

	svc, err := NewOpenAIChat(ChatConfig{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var tokens []string
	result, err := svc.StreamCompletion(context.Background(), driven.CompletionRequest{
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are helpful.",
		Turns:        []domain.ChatTurn{{Role: domain.RoleUser, Content: "hi"}},
	}, func(token string) error {
		tokens = append(tokens, token)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Text != "Hello, world." {
		t.Errorf("expected accumulated text, got %q", result.Text)
	}
	if len(tokens) != 3 {
		t.Errorf("expected 3 tokens delivered, got %d", len(tokens))
	}
	if result.Usage.PromptTokens != 12 || result.Usage.CompletionTokens != 3 {
		t.Errorf("unexpected usage: %+v", result.Usage)
	}
}

func TestOpenAIChat_StreamCompletion_OnTokenErrorAborts(t *testing.T) {
	server := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"one"}}]}`,
		`{"choices":[{"delta":{"content":"two"}}]}`,
	})
	defer server.Close()

	svc, err := NewOpenAIChat(ChatConfig{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sinkErr := errors.New("sink closed")
	calls := 0
	_, err = svc.StreamCompletion(context.Background(), driven.CompletionRequest{}, func(token string) error {
		calls++
		return sinkErr
	})
	if !errors.Is(err, sinkErr) {
		t.Errorf("expected sink error returned, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected stream aborted after first token, got %d calls", calls)
	}
}

func TestOpenAIChat_StreamCompletion_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom"}}`)
	}))
	defer server.Close()

	svc, err := NewOpenAIChat(ChatConfig{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.StreamCompletion(context.Background(), driven.CompletionRequest{}, func(string) error { return nil })
	if !errors.Is(err, domain.ErrExternalService) {
		t.Errorf("expected ErrExternalService, got %v", err)
	}
}

func TestOpenAIChat_Complete(t *testing.T) {
	var gotReq chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": `{"verdict":"pass"}`}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 30, "completion_tokens": 8, "total_tokens": 38},
		})
	}))
	defer server.Close()

	svc, err := NewOpenAIChat(ChatConfig{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.Complete(context.Background(), driven.CompletionRequest{
		Model:        "gpt-4o-mini",
		SystemPrompt: "Judge the answer.",
		MaxTokens:    300,
		Turns:        []domain.ChatTurn{{Role: domain.RoleUser, Content: "question"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Text != `{"verdict":"pass"}` {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if result.Usage.PromptTokens != 30 {
		t.Errorf("expected prompt tokens recorded, got %d", result.Usage.PromptTokens)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("expected system message first, got %+v", gotReq.Messages)
	}
	if gotReq.MaxTokens != 300 {
		t.Errorf("expected max_tokens forwarded, got %d", gotReq.MaxTokens)
	}
}

func TestOpenAIChat_Complete_FallbackModel(t *testing.T) {
	var gotReq chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "ok"}},
			},
		})
	}))
	defer server.Close()

	svc, err := NewOpenAIChat(ChatConfig{APIKey: "sk-test", BaseURL: server.URL, Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Complete(context.Background(), driven.CompletionRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotReq.Model != "gpt-4o" {
		t.Errorf("expected fallback model gpt-4o, got %s", gotReq.Model)
	}
}

func TestOpenAIChat_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"invalid model","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	svc, err := NewOpenAIChat(ChatConfig{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Complete(context.Background(), driven.CompletionRequest{})
	if !errors.Is(err, domain.ErrExternalService) {
		t.Errorf("expected ErrExternalService, got %v", err)
	}
}
