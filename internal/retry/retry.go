// Package retry runs an operation with exponential backoff and jitter on top
// of cenkalti/backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Config is an exponential schedule with a bounded number of retries.
type Config struct {
	// MaxRetries counts retries after the first attempt.
	MaxRetries int
	// InitialBackoff is the first delay.
	InitialBackoff time.Duration
	// MaxBackoff caps any single delay.
	MaxBackoff time.Duration
	// Multiplier grows the delay between retries.
	Multiplier float64
	// JitterFraction randomizes each delay by up to this fraction (0 to 1).
	JitterFraction float64
}

// DefaultConfig retries three times starting at one second.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.2,
	}
}

// ErrorClassifier reports whether err is worth another attempt.
type ErrorClassifier func(error) bool

// IsRetryable is the default classifier: everything but context errors retries.
func IsRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// RetryableError is returned when every attempt failed with a retryable error.
type RetryableError struct {
	Err     error
	Retries int
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("failed after %d retries: %v", e.Retries, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewBackOff builds the exponential schedule described by cfg.
func NewBackOff(cfg Config) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	if cfg.InitialBackoff > 0 {
		bo.InitialInterval = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		bo.MaxInterval = cfg.MaxBackoff
	}
	if cfg.Multiplier > 1 {
		bo.Multiplier = cfg.Multiplier
	}
	bo.RandomizationFactor = cfg.JitterFraction
	bo.Reset()
	return bo
}

// Do executes fn until it succeeds, returns an error the classifier rejects,
// exhausts cfg.MaxRetries, or ctx is done.
func Do(ctx context.Context, cfg Config, classifier ErrorClassifier, fn func(context.Context) error) error {
	if classifier == nil {
		classifier = IsRetryable
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	attempts := 0
	var lastErr error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		lastErr = err
		if !classifier(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(NewBackOff(cfg)),
		backoff.WithMaxTries(uint(cfg.MaxRetries+1)),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if lastErr == nil {
		return err
	}
	if !classifier(lastErr) {
		return lastErr
	}
	return &RetryableError{Err: lastErr, Retries: attempts - 1}
}
