// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

// Package resilience provides retry and circuit breaker wrappers for
// calls that leave the process: remote agent endpoints, MCP servers and
// model backends.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the backoff before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff delay.
	MaxDelay time.Duration

	// Multiplier for exponential backoff (default 2.0).
	Multiplier float64

	// IsRecoverable decides whether an error is worth another attempt.
	// If nil, Recoverable decides.
	IsRecoverable func(error) bool

	// Jitter between 0 and 1; 0.1 means up to ten percent either way.
	Jitter float64
}

// DefaultRetryConfig returns the retry settings remote executors start from.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		Multiplier:    2.0,
		Jitter:        0.1,
		IsRecoverable: Recoverable,
	}
}

// WithMaxAttempts returns a copy of the config with MaxAttempts set.
func (rc RetryConfig) WithMaxAttempts(attempts int) RetryConfig {
	rc.MaxAttempts = attempts
	return rc
}

// WithInitialDelay returns a copy of the config with InitialDelay set.
func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

// WithIsRecoverable returns a copy of the config with IsRecoverable set.
func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

// Do runs fn until it succeeds, the error is not recoverable, attempts run
// out, or the context ends. The last error is returned.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	recoverable := rc.IsRecoverable
	if recoverable == nil {
		recoverable = Recoverable
	}

	var lastErr error
	for attempt := 0; attempt < rc.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.New(errors.CodeTimeout, "context ended during retry backoff", ctx.Err()).
					WithContext("attempt", attempt).
					WithContext("max_attempts", rc.MaxAttempts)
			case <-time.After(rc.backoff(attempt)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !recoverable(err) {
			return err
		}
	}
	return lastErr
}

// backoff computes the delay before the given attempt (attempt >= 1).
func (rc RetryConfig) backoff(attempt int) time.Duration {
	multiplier := rc.Multiplier
	if multiplier == 0 {
		multiplier = 2.0
	}
	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	if rc.Jitter > 0 {
		spread := 2 * rc.Jitter * (rand.Float64() - 0.5)
		delay = time.Duration(float64(delay) * (1 + spread))
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// Recoverable reports whether err is worth retrying. Typed errors carry an
// explicit flag; untyped errors are treated as transient.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*errors.RuntimeError); ok {
		return re.Recoverable
	}
	return true
}
