// Package retry holds the backoff policy consumed by the paced fetcher.
package retry

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// Policy decides whether a failed attempt is retried and how long to wait.
// It is a plain value with no hidden clock, so schedules are deterministic.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
	RetryableKinds []crawler.FetchErrorKind
}

// Default returns the policy used when nothing is configured: three attempts,
// 500ms doubling up to 8s, retrying timeouts and 5xx responses.
func Default() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		Multiplier:     2,
		MaxDelay:       8 * time.Second,
		RetryableKinds: []crawler.FetchErrorKind{crawler.FetchTimeout, crawler.FetchServerError},
	}
}

// Validate rejects policies that could loop forever or never back off.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return errors.New("delays must be >= 0")
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1, got %v", p.Multiplier)
	}
	if slices.Contains(p.RetryableKinds, crawler.FetchClientError) {
		return errors.New("client errors are never retryable")
	}
	return nil
}

// ShouldRetry reports whether another attempt follows attempt number attempt
// (1-based) that failed with kind.
func (p Policy) ShouldRetry(kind crawler.FetchErrorKind, attempt int) bool {
	if kind == crawler.FetchClientError {
		return false
	}
	if attempt >= p.MaxAttempts {
		return false
	}
	return slices.Contains(p.RetryableKinds, kind)
}

// Backoff returns the wait after attempt number attempt (1-based):
// BaseDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Schedule lists every backoff the policy would apply before giving up.
func (p Policy) Schedule() []time.Duration {
	out := make([]time.Duration, 0, max(p.MaxAttempts-1, 0))
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		out = append(out, p.Backoff(attempt))
	}
	return out
}
