package ports

import "context"

// LLMClient is the generation collaborator. Its retry and rate-limit
// behavior is hidden behind this contract; the orchestrator only sees
// content or tool calls.
type LLMClient interface {
	// Complete sends messages and returns a response (non-streaming)
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier
	Model() string
}

// LLMFactory builds a client for a routed provider/model pair.
type LLMFactory interface {
	Client(provider, model string) (LLMClient, error)
}

// CompletionRequest contains all parameters for one generation call.
type CompletionRequest struct {
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// CompletionResponse is the collaborator's response.
type CompletionResponse struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason,omitempty"`
	Usage      TokenUsage `json:"usage"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ToolCall is a structured tool invocation the model emitted.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// RouteRequest carries the signals the model router uses per invocation.
type RouteRequest struct {
	Phase          Phase     `json:"phase"`
	Agent          AgentType `json:"agent,omitempty"`
	ComplexityHint string    `json:"complexity_hint,omitempty"` // simple, complex
	SessionID      string    `json:"session_id,omitempty"`
}

// RouteDecision is the routed provider/model pair.
type RouteDecision struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Reason   string `json:"reason,omitempty"`
}

// ModelRouter picks a provider/model per task. The orchestrator calls it
// once per agent or phase invocation but does not implement it.
type ModelRouter interface {
	Route(ctx context.Context, req RouteRequest) (RouteDecision, error)
}

// IntentEnricher is the natural-language front end, consumed as a single
// function producing an EnrichedIntent.
type IntentEnricher interface {
	Enrich(ctx context.Context, description string, preferences map[string]string) (*EnrichedIntent, error)
}

// Packager turns generated files into a downloadable archive. Implemented
// as an on-disk/zip sink outside the orchestration core.
type Packager interface {
	Package(files []GeneratedFile) ([]byte, error)
}
