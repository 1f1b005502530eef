// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox provides the isolation primitive skill payloads run in:
// instances with a strict lifecycle, hard resource ceilings and a warm pool
// that scales between configured bounds.
package sandbox

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
)

// ResourceLimits are the hard ceilings an instance enforces on its payload.
type ResourceLimits struct {
	// CPUShare is the fraction of one core the payload may use, (0,1].
	CPUShare float64

	// MemoryBytes caps payload allocations tracked through the budget.
	MemoryBytes int64

	// WallClock caps a single invocation end to end. Breaching it destroys
	// the instance; it is not the caller's dispatch timeout.
	WallClock time.Duration

	// Network is deny-all unless hosts are allow-listed.
	Network NetworkPolicy
}

// Validate rejects limits an instance cannot enforce.
func (l ResourceLimits) Validate() error {
	if l.CPUShare <= 0 || l.CPUShare > 1 {
		return errors.Newf(errors.CodeSandboxSpawnError, "cpu share %v outside (0,1]", l.CPUShare)
	}
	if l.MemoryBytes <= 0 {
		return errors.Newf(errors.CodeSandboxSpawnError, "memory limit must be positive")
	}
	if l.WallClock <= 0 {
		return errors.Newf(errors.CodeSandboxSpawnError, "wall clock limit must be positive")
	}
	return nil
}

// NetworkPolicy is an explicit host allow-list. The zero value denies all
// outbound traffic.
type NetworkPolicy struct {
	AllowedHosts []string
}

// Allows reports whether the host may be reached.
func (p NetworkPolicy) Allows(host string) bool {
	for _, h := range p.AllowedHosts {
		if h == host {
			return true
		}
	}
	return false
}

// GuardedTransport enforces a NetworkPolicy on every outbound HTTP request.
// Payloads that need network access get a client built on this; nothing else.
type GuardedTransport struct {
	Policy NetworkPolicy
	Base   http.RoundTripper
}

// RoundTrip rejects requests to hosts outside the allow-list.
func (t *GuardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()
	if !t.Policy.Allows(host) {
		return nil, errors.Newf(errors.CodeResourceLimitExceeded, "network policy denies host %q", host)
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// HTTPClient returns a client constrained by the policy.
func (p NetworkPolicy) HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &GuardedTransport{Policy: p},
	}
}

// Budget tracks a payload's resource accounting against its limits. Payloads
// charge allocations through it; the first over-limit charge fails the
// invocation and condemns the instance.
type Budget struct {
	limitBytes int64
	usedBytes  atomic.Int64
	breached   atomic.Bool
}

func newBudget(limits ResourceLimits) *Budget {
	return &Budget{limitBytes: limits.MemoryBytes}
}

// Alloc charges n bytes. It fails with ResourceLimitExceeded once the
// cumulative charge passes the memory ceiling.
func (b *Budget) Alloc(n int64) error {
	if n < 0 {
		return nil
	}
	if b.usedBytes.Add(n) > b.limitBytes {
		b.breached.Store(true)
		return errors.Newf(errors.CodeResourceLimitExceeded,
			"memory limit exceeded: %d bytes over %d cap", b.usedBytes.Load(), b.limitBytes)
	}
	return nil
}

// Free returns n bytes to the budget.
func (b *Budget) Free(n int64) {
	if n > 0 {
		b.usedBytes.Add(-n)
	}
}

// Used reports the current charge in bytes.
func (b *Budget) Used() int64 { return b.usedBytes.Load() }

// Breached reports whether the memory ceiling was ever crossed.
func (b *Budget) Breached() bool { return b.breached.Load() }

type budgetKey struct{}

type clientKey struct{}

// ContextBudget returns the invocation's budget, if any. Payloads use it to
// account their allocations.
func ContextBudget(ctx context.Context) (*Budget, bool) {
	b, ok := ctx.Value(budgetKey{}).(*Budget)
	return b, ok
}

// Alloc charges n bytes against the invocation budget in ctx, when present.
func Alloc(ctx context.Context, n int64) error {
	if b, ok := ContextBudget(ctx); ok {
		return b.Alloc(n)
	}
	return nil
}

// ContextHTTPClient returns the policy-guarded HTTP client for the
// invocation, if any.
func ContextHTTPClient(ctx context.Context) (*http.Client, bool) {
	c, ok := ctx.Value(clientKey{}).(*http.Client)
	return c, ok
}

func (l ResourceLimits) String() string {
	return fmt.Sprintf("cpu=%.2f mem=%dB wall=%s hosts=%d",
		l.CPUShare, l.MemoryBytes, l.WallClock, len(l.Network.AllowedHosts))
}
