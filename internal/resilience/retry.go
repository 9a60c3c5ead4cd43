package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/lexiqai/voice-coach/internal/fault"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxAttempts       int           // total attempts including the first
	InitialBackoff    time.Duration // wait before the second attempt
	MaxBackoff        time.Duration // upper bound for any wait
	BackoffMultiplier float64       // growth per attempt
	Jitter            bool          // add up to 25% random extra wait
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// IsRetryableError checks if an error is retryable
type IsRetryableError func(error) bool

// Retry calls fn until it succeeds, returns a non-retryable error, runs out
// of attempts, or ctx ends. onRetry, if set, is told about each failure that
// will be retried.
func Retry(ctx context.Context, fn RetryableFunc, config *RetryConfig, isRetryable IsRetryableError, onRetry func(attempt int, wait time.Duration, err error)) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		wait := CalculateBackoff(attempt, config.InitialBackoff, config.MaxBackoff, config.BackoffMultiplier)
		if config.Jitter {
			wait += time.Duration(rand.Float64() * 0.25 * float64(wait))
			if wait > config.MaxBackoff {
				wait = config.MaxBackoff
			}
		}
		if onRetry != nil {
			onRetry(attempt+1, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// CalculateBackoff calculates the backoff duration for a given attempt
func CalculateBackoff(attempt int, initialBackoff time.Duration, maxBackoff time.Duration, multiplier float64) time.Duration {
	backoff := time.Duration(float64(initialBackoff) * math.Pow(multiplier, float64(attempt)))
	if backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}

var transientHints = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"network is unreachable",
	"no route to host",
	"deadline exceeded",
	"i/o timeout",
	"timeout",
	"unavailable",
	"resource exhausted",
	"rate limit",
}

// IsRetryableNetworkError reports whether err is a transport failure worth
// another attempt. Device and permission errors never are.
func IsRetryableNetworkError(err error) bool {
	if err == nil || fault.IsLocalDevice(err) {
		return false
	}
	if fault.IsNetwork(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
