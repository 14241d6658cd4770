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
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxRetries is the number of retry attempts for transient API failures
	DefaultMaxRetries = 3
	// DefaultRetryInitialInterval is the initial backoff interval between retries
	DefaultRetryInitialInterval = 500 * time.Millisecond
	// DefaultRequestsPerSecond is the default client-side rate limit for API calls
	DefaultRequestsPerSecond = 10
)

// RetryProvider wraps a Provider with client-side rate limiting and
// exponential-backoff retries for transient failures (timeouts, 429s,
// 5xx responses). Validation errors such as empty input are not retried.
type RetryProvider struct {
	inner      Provider
	limiter    *rate.Limiter
	maxRetries uint64
	initial    time.Duration
}

// RetryOption configures a RetryProvider
type RetryOption func(*RetryProvider)

// WithMaxRetries sets the number of retry attempts
func WithMaxRetries(n uint64) RetryOption {
	return func(p *RetryProvider) {
		p.maxRetries = n
	}
}

// WithRateLimit sets the client-side requests-per-second limit
func WithRateLimit(rps float64, burst int) RetryOption {
	return func(p *RetryProvider) {
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithInitialInterval sets the initial backoff interval
func WithInitialInterval(d time.Duration) RetryOption {
	return func(p *RetryProvider) {
		p.initial = d
	}
}

// NewRetryProvider wraps an existing provider with retry and rate-limit behavior
func NewRetryProvider(inner Provider, opts ...RetryOption) *RetryProvider {
	p := &RetryProvider{
		inner:      inner,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultRequestsPerSecond),
		maxRetries: DefaultMaxRetries,
		initial:    DefaultRetryInitialInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Embed generates an embedding, retrying transient failures with exponential backoff
func (p *RetryProvider) Embed(ctx context.Context, text string) (*Result, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.initial

	var result *Result
	attempt := 0
	operation := func() error {
		attempt++
		r, err := p.inner.Embed(ctx, text)
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		LogRetry(p.inner.ProviderName(), p.inner.ModelName(), attempt, wait, err)
	}

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, p.maxRetries), ctx),
		notify)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Dimensions returns the wrapped provider's dimensions
func (p *RetryProvider) Dimensions() int {
	return p.inner.Dimensions()
}

// ModelName returns the wrapped provider's model name
func (p *RetryProvider) ModelName() string {
	return p.inner.ModelName()
}

// ProviderName returns the wrapped provider's name
func (p *RetryProvider) ProviderName() string {
	return p.inner.ProviderName()
}

// HealthCheck delegates to the wrapped provider without retries
func (p *RetryProvider) HealthCheck(ctx context.Context) bool {
	return p.inner.HealthCheck(ctx)
}

// isRetryable reports whether an embedding error is worth retrying.
// Rate limits, server errors, and transport failures are transient;
// client-side validation failures are not.
func isRetryable(err error) bool {
	msg := err.Error()
	if strings.Contains(msg, "text cannot be empty") {
		return false
	}
	if strings.Contains(msg, "status 4") && !strings.Contains(msg, "status 429") {
		return false
	}
	return true
}
