// Package providers adapts third-party LLM SDKs to the agent.LLMFunc
// contract: a single blocking call that takes a message history and a
// tool schema and returns one completed response (spec.md §4.8's loop
// is turn-based, not token-streamed, so providers need not stream).
package providers

import (
	"context"
	"strings"
	"time"
)

// retrier holds shared retry configuration for LLM providers.
type retrier struct {
	maxRetries int
	retryDelay time.Duration
}

func newRetrier(maxRetries int, retryDelay time.Duration) retrier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return retrier{maxRetries: maxRetries, retryDelay: retryDelay}
}

// run executes op with linear backoff while isRetryable(err) holds.
func (r retrier) run(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) {
			return err
		}
		if attempt >= r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}

// containsAny reports whether errMsg (already lowercased by the
// caller) contains any of needles.
func containsAny(errMsg string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(errMsg, n) {
			return true
		}
	}
	return false
}

func isRetryableMessage(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return containsAny(msg,
		"rate limit", "rate_limit", "429", "too many requests",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
		"throttling", "throttled",
	)
}
