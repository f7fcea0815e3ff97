// Package resilience implements the retry-with-backoff and
// circuit-breaker discipline applied to every outbound dependency call
// (spec §5, "Retry discipline").
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"

	"github.com/SaintWyss/ragcore/internal/apperrors"
)

// RetryPolicy governs exponential backoff with full jitter.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy mirrors the defaults of spec §5: base 1s, cap 30s,
// up to 4 attempts.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

// Classify reports whether err should be retried. Transient errors are
// upstream timeouts and unavailability (network timeouts, 5xx, 429);
// everything else, including permanent 4xx errors, is not retried
// (spec §5). A Retry-After header is not read: the delay before a
// retried 429 comes from the RetryPolicy backoff alone.
func Classify(err error) bool {
	if err == nil {
		return false
	}
	return apperrors.IsType(err, apperrors.ErrorTypeUpstreamTimeout) ||
		apperrors.IsType(err, apperrors.ErrorTypeUpstreamUnavailable)
}

// Retry runs fn, retrying on transient errors per policy with
// exponential backoff and full jitter, never extending past ctx's
// deadline. It gives up immediately on a permanent (non-transient)
// error, and returns the last error once attempts are exhausted.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !Classify(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := backoffWithFullJitter(policy, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func backoffWithFullJitter(policy RetryPolicy, attempt int) time.Duration {
	cap := float64(policy.MaxDelay)
	base := float64(policy.BaseDelay)
	exp := base * math.Pow(2, float64(attempt))
	if exp > cap {
		exp = cap
	}
	return time.Duration(rand.Float64() * exp)
}

// Breaker wraps gobreaker.CircuitBreaker for a single named dependency
// (embedding provider, LLM provider, object store, or reranker).
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker constructs a circuit breaker that opens after 5 consecutive
// failures and probes again after 30 seconds half-open.
func NewBreaker(name string) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the circuit breaker, translating an open-state
// rejection into an UpstreamUnavailable AppError.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if err != nil && errors.Is(err, gobreaker.ErrOpenState) {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "circuit breaker open for "+b.cb.Name())
	}
	return result, err
}
