// Package resilience provides retry and circuit-breaker primitives used
// around the persistent storage backends.
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig defines configuration for retries
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
	RetryIfFn       func(error) bool
}

// DefaultRetryConfig returns retry settings suited to a local storage backend
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
		Multiplier:      2.0,
		MaxElapsedTime:  2 * time.Second,
	}
}

// Retry retries a function with exponential backoff
func Retry(ctx context.Context, config RetryConfig, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.InitialInterval
	b.MaxInterval = config.MaxInterval
	b.Multiplier = config.Multiplier
	b.MaxElapsedTime = config.MaxElapsedTime

	var backoffWithRetries backoff.BackOff = b
	if config.MaxRetries > 0 {
		backoffWithRetries = backoff.WithMaxRetries(b, uint64(config.MaxRetries))
	}

	ctxBackoff := backoff.WithContext(backoffWithRetries, ctx)

	return backoff.Retry(func() error {
		err := operation()

		// Stop retrying errors the caller marked as permanent
		if err != nil && config.RetryIfFn != nil && !config.RetryIfFn(err) {
			return backoff.Permanent(err)
		}

		return err
	}, ctxBackoff)
}

// RetryWithResult retries a function with exponential backoff and returns a result
func RetryWithResult[T any](ctx context.Context, config RetryConfig, operation func() (T, error)) (T, error) {
	var result T

	err := Retry(ctx, config, func() error {
		var opErr error
		result, opErr = operation()
		return opErr
	})

	return result, err
}
