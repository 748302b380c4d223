package recorder

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	defaultRetryMaxAttempts  = 3
	defaultRetryBaseDelay    = 10 * time.Millisecond
	defaultRetryJitterFactor = 0.3
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// RetryableFunc represents an operation that can be retried.
type RetryableFunc func(ctx context.Context) error

// retryConfig holds configuration for exponential backoff retry logic.
type retryConfig struct {
	maxAttempts      int
	baseDelay        time.Duration
	jitterFactor     float64
	retryOperational bool
}

// RetryOption defines a functional option for Retry.
type RetryOption func(*retryConfig) error

// WithMaxAttempts sets how often the operation is attempted in total.
func WithMaxAttempts(maxAttempts int) RetryOption {
	return func(c *retryConfig) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		c.maxAttempts = maxAttempts

		return nil
	}
}

// WithBaseDelay sets the delay before the first retry; subsequent retries
// back off exponentially from it.
func WithBaseDelay(baseDelay time.Duration) RetryOption {
	return func(c *retryConfig) error {
		if baseDelay < 0 {
			return ErrNegativeBaseDelay
		}

		c.baseDelay = baseDelay

		return nil
	}
}

// WithJitterFactor sets the fraction of the backoff delay that is randomized
// to prevent thundering herds.
func WithJitterFactor(jitterFactor float64) RetryOption {
	return func(c *retryConfig) error {
		if jitterFactor < 0.0 || jitterFactor > 1.0 {
			return ErrInvalidJitterFactor
		}

		c.jitterFactor = jitterFactor

		return nil
	}
}

// WithRetryOperational additionally retries ErrOperational. Read paths use
// this; write paths keep the default so an operational failure after the
// bounded connection retries surfaces to the caller.
func WithRetryOperational() RetryOption {
	return func(c *retryConfig) error {
		c.retryOperational = true
		return nil
	}
}

// Retry executes the provided function with exponential backoff retry logic,
// retrying only on transient errors up to the configured attempt count.
//
// Retry Schedule (default): 0 ms, 10 ms, 20 ms (with 30% jitter).
//
// Only ErrInterface is retried by default; WithRetryOperational extends that
// to ErrOperational. ErrIntegrity and ErrProgramming always fail fast: they
// are caller-visible business conflicts respectively fatal misconfigurations,
// not transient faults.
func Retry(ctx context.Context, fn RetryableFunc, options ...RetryOption) error {
	config := &retryConfig{
		maxAttempts:  defaultRetryMaxAttempts,
		baseDelay:    defaultRetryBaseDelay,
		jitterFactor: defaultRetryJitterFactor,
	}

	for _, option := range options {
		if err := option(config); err != nil {
			return err
		}
	}

	var lastErr error

	for attempt := 0; attempt < config.maxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff: baseDelay * 2^(attempt-1)
			delay := config.baseDelay * time.Duration(1<<(attempt-1))

			// Add jitter to prevent thundering herd
			jitter := rand.Float64() * float64(delay) * config.jitterFactor //nolint:gosec //math/rand is sufficient for jitter
			backoffDelay := delay + time.Duration(jitter)

			select {
			case <-time.After(backoffDelay):
				// Continue with retry
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil // Success
		}

		if !config.isRetryableError(lastErr) {
			return lastErr // Permanent failure
		}
	}

	return lastErr // Max attempts reached
}

// isRetryableError decides whether an error classifies as transient under the
// configured policy.
func (c *retryConfig) isRetryableError(err error) bool {
	if errors.Is(err, ErrInterface) {
		return true
	}

	if c.retryOperational && errors.Is(err, ErrOperational) {
		return true
	}

	return false
}
