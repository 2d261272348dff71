package errors

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  2,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewProviderError("openai", "gpt-test", 503, errors.New("unavailable"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	wantErr := NewValidationError("design", "missing result", nil)
	err := Retry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("permanent error must not be retried, got %d calls", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		return NewProviderError("openai", "gpt-test", 429, errors.New("rate limited"))
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected MaxAttempts+1 calls, got %d", calls)
	}
}

func TestRetryObservesContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, fastRetryConfig(), func(ctx context.Context) error {
		t.Fatal("fn must not run with a cancelled context")
		return nil
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestRetryWithResultReturnsValue(t *testing.T) {
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (string, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "done" {
		t.Errorf("expected result, got %q", got)
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", NewValidationError("plan", "bad shape", nil), KindValidation},
		{"provider", NewProviderError("openai", "gpt-test", 500, errors.New("boom")), KindProvider},
		{"cancelled", ErrCancelled, KindCancelled},
		{"wrapped cancelled", context.Canceled, KindCancelled},
		{"plain", errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsTransientClassification(t *testing.T) {
	if IsTransient(NewValidationError("spec", "bad", nil)) {
		t.Error("validation errors are never transient")
	}
	if !IsTransient(NewProviderError("openai", "m", 429, errors.New("rate limited"))) {
		t.Error("429 should be transient")
	}
	if IsTransient(NewProviderError("openai", "m", 400, errors.New("bad request"))) {
		t.Error("400 should be permanent")
	}
	if !IsTransient(errors.New("connection refused")) {
		t.Error("connection refused should be transient")
	}
}
