// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"sync"
	"time"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
)

// BreakerState is the state of a circuit breaker.
type BreakerState string

const (
	// StateClosed lets calls through and counts failures.
	StateClosed BreakerState = "closed"

	// StateOpen rejects calls until the cooldown passes.
	StateOpen BreakerState = "open"

	// StateHalfOpen lets trial calls through to probe recovery.
	StateHalfOpen BreakerState = "half-open"
)

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failures before opening.
	FailureThreshold int

	// SuccessThreshold is the half-open successes before closing again.
	SuccessThreshold int

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration

	// Name identifies the breaker in errors and logs.
	Name string
}

// Breaker stops hammering an endpoint that keeps failing. A run of
// failures opens it; after the cooldown a few successful probes close it.
type Breaker struct {
	config       BreakerConfig
	mu           sync.Mutex
	state        BreakerState
	failures     int
	successes    int
	lastFailTime time.Time
}

// NewBreaker creates a circuit breaker, filling in defaults for zero fields.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 2
	}
	if config.Cooldown == 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "breaker"
	}
	return &Breaker{config: config, state: StateClosed}
}

// Call runs fn if the breaker allows it and records the outcome. While the
// breaker is open it returns an ExternalServiceError without running fn.
func (b *Breaker) Call(fn func() error) error {
	b.mu.Lock()
	if b.state == StateOpen && time.Since(b.lastFailTime) > b.config.Cooldown {
		b.state = StateHalfOpen
		b.failures = 0
		b.successes = 0
	}
	if b.state == StateOpen {
		b.mu.Unlock()
		return errors.Newf(errors.CodeExternalServiceError, "%s: circuit open", b.config.Name).
			WithRecoverable(false)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		b.lastFailTime = time.Now()
		if b.state == StateHalfOpen || b.failures >= b.config.FailureThreshold {
			b.state = StateOpen
			b.failures = 0
			b.successes = 0
		}
		return err
	}
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	case StateClosed:
		b.failures = 0
	}
	return nil
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.lastFailTime) > b.config.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}
