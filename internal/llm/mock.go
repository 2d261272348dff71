package llm

import (
	"context"
	"fmt"
	"sync"

	"ship/internal/ship/ports"
)

// MockClient implements ports.LLMClient for testing. Responses are either
// scripted in order or produced by CompleteFunc when set.
type MockClient struct {
	mu        sync.Mutex
	model     string
	responses []*ports.CompletionResponse
	errs      []error
	calls     []ports.CompletionRequest

	// CompleteFunc, when set, overrides the scripted queue.
	CompleteFunc func(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error)
}

// NewMockClient returns a mock with an empty script.
func NewMockClient(model string) *MockClient {
	return &MockClient{model: model}
}

// Enqueue appends a scripted response (or error) to the queue.
func (m *MockClient) Enqueue(resp *ports.CompletionResponse, err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	m.errs = append(m.errs, err)
	return m
}

// EnqueueContent appends a plain-content response.
func (m *MockClient) EnqueueContent(content string) *MockClient {
	return m.Enqueue(&ports.CompletionResponse{Content: content, StopReason: "stop"}, nil)
}

// EnqueueToolCall appends a response carrying a single tool call.
func (m *MockClient) EnqueueToolCall(name string, args map[string]any) *MockClient {
	return m.Enqueue(&ports.CompletionResponse{
		ToolCalls:  []ports.ToolCall{{ID: "call-1", Name: name, Arguments: args}},
		StopReason: "tool_calls",
	}, nil)
}

func (m *MockClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.CompleteFunc != nil {
		m.mu.Lock()
		m.calls = append(m.calls, req)
		m.mu.Unlock()
		return m.CompleteFunc(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("mock client: no scripted response for call %d", len(m.calls))
	}
	resp, err := m.responses[0], m.errs[0]
	m.responses = m.responses[1:]
	m.errs = m.errs[1:]
	return resp, err
}

func (m *MockClient) Model() string { return m.model }

// Calls returns a copy of the recorded requests.
func (m *MockClient) Calls() []ports.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

var _ ports.LLMClient = (*MockClient)(nil)
