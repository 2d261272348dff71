package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	shiperrors "ship/internal/errors"
	"ship/internal/ship/ports"
)

func TestOpenAIClient_CompleteParsesContentAndToolCalls(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {
					"content": "done",
					"tool_calls": [{
						"id": "call-7",
						"function": {"name": "submit_work", "arguments": "{\"files\": []}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("openai", "gpt-4o", Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	resp, err := client.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{{Role: "user", Content: "hi"}},
		Tools:    []ports.ToolDefinition{{Name: "submit_work"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "done" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "submit_work" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestOpenAIClient_RateLimitIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewOpenAIClient("openai", "gpt-4o", Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	_, err = client.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *shiperrors.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %T: %v", err, err)
	}
	if pe.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", pe.StatusCode)
	}
	if !shiperrors.IsTransient(err) {
		t.Error("429 should be transient")
	}
}

func TestOpenAIClient_AuthFailureIsPermanent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "bad key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewOpenAIClient("openai", "gpt-4o", Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	_, err = client.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if shiperrors.IsTransient(err) {
		t.Error("401 must not be retried")
	}
}

func TestRetryClient_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	mock := NewMockClient("gpt-4o")
	mock.CompleteFunc = func(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
		if attempts.Add(1) < 3 {
			return nil, shiperrors.NewProviderError("openai", "gpt-4o", http.StatusServiceUnavailable, errors.New("unavailable"))
		}
		return &ports.CompletionResponse{Content: "recovered"}, nil
	}

	client := NewRetryClient(mock, shiperrors.RetryConfig{MaxAttempts: 3, BaseDelay: 1, MaxDelay: 1})
	resp, err := client.Complete(context.Background(), ports.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("content = %q", resp.Content)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestRetryClient_DoesNotRetryPermanentError(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	mock := NewMockClient("gpt-4o")
	mock.CompleteFunc = func(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
		attempts.Add(1)
		pe := shiperrors.NewProviderError("openai", "gpt-4o", http.StatusBadRequest, errors.New("bad request"))
		pe.Permanent = true
		return nil, pe
	}

	client := NewRetryClient(mock, shiperrors.RetryConfig{MaxAttempts: 3, BaseDelay: 1, MaxDelay: 1})
	if _, err := client.Complete(context.Background(), ports.CompletionRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestFactory_CachesClientsPerProviderModel(t *testing.T) {
	t.Parallel()

	factory := NewFactory(Config{APIKey: "k"})
	first, err := factory.Client("openai", "gpt-4o")
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}
	second, err := factory.Client("openai", "gpt-4o")
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}
	if first != second {
		t.Error("expected cached client for identical provider/model")
	}
	other, err := factory.Client("openai", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}
	if other == first {
		t.Error("expected distinct client for different model")
	}
}

func TestFactory_RejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	factory := NewFactory(Config{})
	if _, err := factory.Client("carrier-pigeon", "gpt-4o"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
