package portal

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	valierr "github.com/mrz1836/vali/pkg/errors"
)

// ErrRetryable marks an error as worth another attempt.
var ErrRetryable = &valierr.ValiError{
	Code:     "RETRYABLE_ERROR",
	Message:  "retryable error",
	ExitCode: valierr.ExitGeneral,
}

// RetryConfig controls how often and how fast an operation is retried.
type RetryConfig struct {
	MaxAttempts int           // total attempts, the first one included
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // ceiling for the backoff
}

// DefaultRetryConfig gives three attempts with roughly 1s and 2s pauses.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    4 * time.Second,
	}
}

// Retry runs operation under the default retry configuration.
func Retry[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	return RetryWithConfig(ctx, DefaultRetryConfig(), operation)
}

// RetryWithConfig runs operation until it succeeds, fails with a
// non-retryable error, or exhausts cfg.MaxAttempts. Between attempts it
// sleeps with jittered exponential backoff, honoring ctx cancellation.
func RetryWithConfig[T any](ctx context.Context, cfg RetryConfig, operation func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err = operation()
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return result, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(backoffDelay(attempt, cfg.BaseDelay, cfg.MaxDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}

	return result, fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, err)
}

// backoffDelay doubles the base delay per attempt up to the ceiling,
// then picks a random point in [delay/2, delay) so concurrent retries
// spread out.
func backoffDelay(attempt int, base, ceiling time.Duration) time.Duration {
	delay := base * (1 << attempt)
	if delay > ceiling {
		delay = ceiling
	}
	half := delay / 2
	return half + rand.N(half) //nolint:gosec // G404: Jitter does not require cryptographic randomness
}

// IsRetryable reports whether err should trigger another attempt:
// explicit retryable marks, timeouts, and rate limiting qualify.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRetryable) ||
		errors.Is(err, valierr.ErrTimeout) ||
		errors.Is(err, valierr.ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ParseRetryAfter reads a Retry-After header given in seconds. Anything
// unparseable comes back as zero.
func ParseRetryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// WrapRetryable marks err as retryable, keeping it unwrappable.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}
