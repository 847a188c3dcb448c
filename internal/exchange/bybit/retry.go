package bybit

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig tunes the exponential backoff applied to transient failures.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryConfig is the backoff used for every API call the bot makes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// withRetry runs fn, retrying transient errors with exponential backoff.
// Non-retryable errors and context cancellation return immediately.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	cfg := DefaultRetryConfig()
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxRetries || !IsRetryable(lastErr) {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(attempt, cfg)):
		}
	}
	return lastErr
}

func backoffDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		delay += time.Duration(rand.Float64() * 0.1 * float64(delay))
	}
	return delay
}
