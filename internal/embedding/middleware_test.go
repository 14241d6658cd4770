/*-------------------------------------------------------------------------
 *
 * pgEdge Assistant Retrieval Engine
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// flakyProvider fails a fixed number of times before succeeding
type flakyProvider struct {
	failures int
	calls    int
	err      error
}

func (p *flakyProvider) Embed(ctx context.Context, text string) (*Result, error) {
	p.calls++
	if p.calls <= p.failures {
		if p.err != nil {
			return nil, p.err
		}
		return nil, fmt.Errorf("API request failed with status 503: overloaded")
	}
	return &Result{
		Vector:  []float64{0.1, 0.2, 0.3},
		Tokens:  3,
		Elapsed: time.Millisecond,
		Model:   "flaky-model",
	}, nil
}

func (p *flakyProvider) Dimensions() int               { return 3 }
func (p *flakyProvider) ModelName() string             { return "flaky-model" }
func (p *flakyProvider) ProviderName() string          { return "flaky" }
func (p *flakyProvider) HealthCheck(context.Context) bool { return true }

func TestRetryProvider_SucceedsFirstTry(t *testing.T) {
	inner := &flakyProvider{failures: 0}
	provider := NewRetryProvider(inner, WithInitialInterval(time.Millisecond))

	result, err := provider.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Vector) != 3 {
		t.Errorf("expected 3 dimensions, got %d", len(result.Vector))
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryProvider_RetriesTransientFailure(t *testing.T) {
	inner := &flakyProvider{failures: 2}
	provider := NewRetryProvider(inner, WithInitialInterval(time.Millisecond))

	result, err := provider.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", inner.calls)
	}
}

func TestRetryProvider_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakyProvider{failures: 10}
	provider := NewRetryProvider(inner,
		WithMaxRetries(2),
		WithInitialInterval(time.Millisecond))

	_, err := provider.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls (initial + 2 retries), got %d", inner.calls)
	}
}

func TestRetryProvider_DoesNotRetryValidationError(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: errors.New("text cannot be empty")}
	provider := NewRetryProvider(inner, WithInitialInterval(time.Millisecond))

	_, err := provider.Embed(context.Background(), "")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call for permanent error, got %d", inner.calls)
	}
}

func TestRetryProvider_DoesNotRetryClientError(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: errors.New("API request failed with status 401: invalid key")}
	provider := NewRetryProvider(inner, WithInitialInterval(time.Millisecond))

	_, err := provider.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call for 401 error, got %d", inner.calls)
	}
}

func TestRetryProvider_RetriesRateLimit(t *testing.T) {
	inner := &flakyProvider{failures: 1, err: errors.New("API request failed with status 429: slow down")}
	provider := NewRetryProvider(inner, WithInitialInterval(time.Millisecond))

	_, err := provider.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("expected success after rate-limit retry, got: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 calls, got %d", inner.calls)
	}
}

func TestRetryProvider_CancelledContext(t *testing.T) {
	inner := &flakyProvider{failures: 0}
	provider := NewRetryProvider(inner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Embed(ctx, "hello")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestRetryProvider_Delegation(t *testing.T) {
	inner := &flakyProvider{}
	provider := NewRetryProvider(inner)

	if provider.Dimensions() != 3 {
		t.Errorf("expected 3 dimensions, got %d", provider.Dimensions())
	}
	if provider.ModelName() != "flaky-model" {
		t.Errorf("expected model 'flaky-model', got %q", provider.ModelName())
	}
	if provider.ProviderName() != "flaky" {
		t.Errorf("expected provider 'flaky', got %q", provider.ProviderName())
	}
	if !provider.HealthCheck(context.Background()) {
		t.Error("expected healthy")
	}
}
