package llm

import (
	"fmt"
	"strings"
	"sync"

	shiperrors "ship/internal/errors"
	"ship/internal/ship/ports"
)

// Factory builds and caches LLM clients keyed by provider/model. Every
// returned client is wrapped with retry.
type Factory struct {
	mu      sync.Mutex
	config  Config
	retry   shiperrors.RetryConfig
	clients map[string]ports.LLMClient
}

// NewFactory returns a client factory with the given connection settings.
func NewFactory(config Config) *Factory {
	return &Factory{
		config:  config,
		retry:   shiperrors.DefaultRetryConfig(),
		clients: make(map[string]ports.LLMClient),
	}
}

// Client returns a cached or newly built client for the provider/model pair.
func (f *Factory) Client(provider, model string) (ports.LLMClient, error) {
	provider = normalizeProvider(provider)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := provider + "/" + model
	if client, ok := f.clients[key]; ok {
		return client, nil
	}

	client, err := f.build(provider, model)
	if err != nil {
		return nil, err
	}
	client = NewRetryClient(client, f.retry)
	f.clients[key] = client
	return client, nil
}

func (f *Factory) build(provider, model string) (ports.LLMClient, error) {
	switch provider {
	case "openai", "deepseek", "openrouter":
		config := f.config
		if config.BaseURL == "" {
			config.BaseURL = defaultBaseURL(provider)
		}
		return NewOpenAIClient(provider, model, config)
	case "mock":
		return NewMockClient(model), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return "openai"
	}
	return provider
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "openrouter":
		return "https://openrouter.ai/api/v1"
	default:
		return "https://api.openai.com/v1"
	}
}

var _ ports.LLMFactory = (*Factory)(nil)
