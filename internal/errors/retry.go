package errors

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior for locator page fetches. Endpoint
// probes never retry; each candidate path is tried exactly once.
type RetryConfig struct {
	MaxRetries   int           // Maximum number of retries (0 = no retries)
	InitialDelay time.Duration // Initial delay before first retry
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Delay multiplier for exponential backoff
	Jitter       float64       // Random jitter factor (0-1)
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 300 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Retrier implements retry logic with exponential backoff.
type Retrier struct {
	config RetryConfig
	rng    *rand.Rand
}

// NewRetrier creates a new retrier.
func NewRetrier(config RetryConfig) *Retrier {
	return &Retrier{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewDefaultRetrier creates a retrier with default configuration.
func NewDefaultRetrier() *Retrier {
	return NewRetrier(DefaultRetryConfig())
}

// RetryFunc is a function that can be retried.
type RetryFunc func(ctx context.Context) error

// Do executes the function, retrying retryable failures with backoff.
// Returns the last error if all attempts fail.
func (r *Retrier) Do(ctx context.Context, fn RetryFunc) error {
	var lastErr error
	delay := r.config.InitialDelay

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == r.config.MaxRetries {
			break
		}

		wait := r.jittered(delay)
		select {
		case <-ctx.Done():
			return NewCancelledError("", "retry_wait")
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * r.config.Multiplier)
		if delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
		}
	}

	return lastErr
}

// jittered applies random jitter to a delay.
func (r *Retrier) jittered(d time.Duration) time.Duration {
	if r.config.Jitter <= 0 {
		return d
	}
	jitter := 1 + r.config.Jitter*(2*r.rng.Float64()-1)
	return time.Duration(float64(d) * jitter)
}
