package llm

import (
	"context"
	"time"

	shiperrors "ship/internal/errors"
	"ship/internal/logging"
	"ship/internal/ship/ports"
	"ship/internal/utils"
)

// retryClient wraps an LLM client with transient-error retry.
type retryClient struct {
	underlying  ports.LLMClient
	retryConfig shiperrors.RetryConfig
	logger      logging.Logger
}

// NewRetryClient wraps an LLM client with exponential-backoff retry. Only
// transient errors are retried; validation and permanent provider errors
// surface immediately.
func NewRetryClient(client ports.LLMClient, retryConfig shiperrors.RetryConfig) ports.LLMClient {
	return &retryClient{
		underlying:  client,
		retryConfig: retryConfig,
		logger:      utils.NewComponentLogger("LLMRetry"),
	}
}

func (c *retryClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	startTime := time.Now()
	resp, err := shiperrors.RetryWithResultAndLog(ctx, c.retryConfig, func(ctx context.Context) (*ports.CompletionResponse, error) {
		return c.underlying.Complete(ctx, req)
	}, c.logger)
	if err != nil {
		c.logger.Warn("LLM request failed after retries (took %v): %v", time.Since(startTime), err)
		return nil, err
	}
	return resp, nil
}

func (c *retryClient) Model() string {
	return c.underlying.Model()
}
