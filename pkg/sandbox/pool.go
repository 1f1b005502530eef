// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/telemetry"
)

// Pool keeps between min and max warm instances and lends them out one
// invocation at a time. Scaling runs on a fixed interval off the hot path:
// an acquire never cold-starts an instance when a warm one is free, and when
// the pool is at max the caller blocks up to its own deadline before failing
// PoolExhausted.
type Pool struct {
	limits        ResourceLimits
	minInstances  int
	maxInstances  int
	retireAfter   int
	growAt        float64
	shrinkAt      float64
	scaleInterval time.Duration
	idleGrace     time.Duration
	metrics       *telemetry.RouterMetrics

	mu    sync.Mutex
	idle  []*idleInstance
	busy  map[string]*Instance
	total int

	closed atomic.Bool
	notify chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	spawned   atomic.Int64
	destroyed atomic.Int64
	exhausted atomic.Int64
}

type idleInstance struct {
	inst      *Instance
	idleSince time.Time
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithLimits sets the resource limits applied to every instance.
func WithLimits(limits ResourceLimits) PoolOption {
	return func(p *Pool) { p.limits = limits }
}

// WithMinInstances sets the warm floor.
func WithMinInstances(min int) PoolOption {
	return func(p *Pool) {
		if min >= 0 {
			p.minInstances = min
		}
	}
}

// WithMaxInstances sets the hard instance ceiling.
func WithMaxInstances(max int) PoolOption {
	return func(p *Pool) {
		if max > 0 {
			p.maxInstances = max
		}
	}
}

// WithRetireAfter retires an instance after n invocations (0 disables).
func WithRetireAfter(n int) PoolOption {
	return func(p *Pool) {
		if n >= 0 {
			p.retireAfter = n
		}
	}
}

// WithScaleThresholds sets the utilization ratios that trigger growth and
// shrinkage on the scaling tick.
func WithScaleThresholds(growAt, shrinkAt float64) PoolOption {
	return func(p *Pool) {
		if growAt > 0 && growAt <= 1 {
			p.growAt = growAt
		}
		if shrinkAt >= 0 && shrinkAt < 1 {
			p.shrinkAt = shrinkAt
		}
	}
}

// WithScaleInterval sets how often utilization is checked.
func WithScaleInterval(interval time.Duration) PoolOption {
	return func(p *Pool) {
		if interval > 0 {
			p.scaleInterval = interval
		}
	}
}

// WithIdleGrace sets how long an instance must sit idle before a shrink tick
// may destroy it.
func WithIdleGrace(grace time.Duration) PoolOption {
	return func(p *Pool) {
		if grace > 0 {
			p.idleGrace = grace
		}
	}
}

// WithMetrics wires pool occupancy gauges.
func WithMetrics(m *telemetry.RouterMetrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// NewPool builds the pool and warms it to the minimum instance count.
func NewPool(opts ...PoolOption) (*Pool, error) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		limits: ResourceLimits{
			CPUShare:    0.5,
			MemoryBytes: 256 << 20,
			WallClock:   30 * time.Second,
		},
		minInstances:  1,
		maxInstances:  8,
		retireAfter:   100,
		growAt:        0.8,
		shrinkAt:      0.3,
		scaleInterval: time.Second,
		idleGrace:     30 * time.Second,
		busy:          make(map[string]*Instance),
		notify:        make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.minInstances > p.maxInstances {
		cancel()
		return nil, errors.Newf(errors.CodeSandboxSpawnError,
			"min instances %d above max %d", p.minInstances, p.maxInstances)
	}
	if err := p.limits.Validate(); err != nil {
		cancel()
		return nil, err
	}

	p.mu.Lock()
	for i := 0; i < p.minInstances; i++ {
		if err := p.spawnLocked(); err != nil {
			p.mu.Unlock()
			cancel()
			return nil, err
		}
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go p.scaler()

	return p, nil
}

// spawnLocked adds one instance to the idle set. Caller holds mu.
func (p *Pool) spawnLocked() error {
	inst, err := newInstance(p.limits, p.retireAfter)
	if err != nil {
		return err
	}
	p.idle = append(p.idle, &idleInstance{inst: inst, idleSince: time.Now()})
	p.total++
	p.spawned.Add(1)
	return nil
}

// destroyLocked removes one instance from the pool's accounting. Caller
// holds mu.
func (p *Pool) destroyLocked(inst *Instance) {
	inst.Destroy()
	p.total--
	p.destroyed.Add(1)
}

// Acquire borrows a Ready instance, spawning one only when no warm instance
// exists and the pool is below max. At max it blocks until an instance frees
// up or ctx expires, then fails PoolExhausted.
func (p *Pool) Acquire(ctx context.Context) (*Instance, error) {
	for {
		if p.closed.Load() {
			return nil, errors.Newf(errors.CodeSandboxSpawnError, "pool is closed")
		}

		p.mu.Lock()
		for len(p.idle) > 0 {
			last := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]
			if last.inst.State() != Ready {
				p.destroyLocked(last.inst)
				continue
			}
			p.busy[last.inst.ID()] = last.inst
			p.mu.Unlock()
			p.recordOccupancy(ctx)
			return last.inst, nil
		}

		if p.total < p.maxInstances {
			if err := p.spawnLocked(); err != nil {
				p.mu.Unlock()
				return nil, err
			}
			p.mu.Unlock()
			continue
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			p.exhausted.Add(1)
			return nil, errors.New(errors.CodePoolExhausted,
				"no sandbox instance became available before the deadline", ctx.Err())
		case <-p.notify:
		case <-p.ctx.Done():
			return nil, errors.Newf(errors.CodeSandboxSpawnError, "pool is closed")
		}
	}
}

// Release returns a borrowed instance. Draining and destroyed instances are
// reclaimed; the pool is topped back up to its floor on the next scale tick.
func (p *Pool) Release(inst *Instance) {
	if inst == nil {
		return
	}

	p.mu.Lock()
	delete(p.busy, inst.ID())
	switch inst.State() {
	case Ready:
		p.idle = append(p.idle, &idleInstance{inst: inst, idleSince: time.Now()})
	default:
		p.destroyLocked(inst)
	}
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
	p.recordOccupancy(context.Background())
}

// Invoke acquires an instance, runs the request, and releases it. This is
// the entry point executors use; they never hold an instance across calls.
func (p *Pool) Invoke(ctx context.Context, req Request) (any, error) {
	inst, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(inst)
	return inst.Invoke(ctx, req)
}

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Total     int
	Idle      int
	Busy      int
	Spawned   int64
	Destroyed int64
	Exhausted int64
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Total:     p.total,
		Idle:      len(p.idle),
		Busy:      len(p.busy),
		Spawned:   p.spawned.Load(),
		Destroyed: p.destroyed.Load(),
		Exhausted: p.exhausted.Load(),
	}
}

// Close destroys all instances and stops the scaler.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ii := range p.idle {
		p.destroyLocked(ii.inst)
	}
	p.idle = nil
	for _, inst := range p.busy {
		p.destroyLocked(inst)
	}
	p.busy = map[string]*Instance{}
	return nil
}

func (p *Pool) scaler() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.scaleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.scaleTick()
		}
	}
}

// scaleTick grows at high utilization, shrinks idle instances past their
// grace at low utilization, and keeps the pool at its floor.
func (p *Pool) scaleTick() {
	p.mu.Lock()

	for p.total < p.minInstances {
		if err := p.spawnLocked(); err != nil {
			slog.Warn("sandbox.pool.respawn_failed", slog.String("error", err.Error()))
			break
		}
	}

	if p.total > 0 {
		utilization := float64(len(p.busy)) / float64(p.total)
		switch {
		case utilization >= p.growAt && p.total < p.maxInstances:
			if err := p.spawnLocked(); err != nil {
				slog.Warn("sandbox.pool.grow_failed", slog.String("error", err.Error()))
			} else {
				slog.Debug("sandbox.pool.grow",
					slog.Int("total", p.total), slog.Float64("utilization", utilization))
			}
		case utilization <= p.shrinkAt && p.total > p.minInstances && len(p.idle) > 0:
			oldest := p.idle[0]
			if time.Since(oldest.idleSince) >= p.idleGrace {
				p.idle = p.idle[1:]
				p.destroyLocked(oldest.inst)
				slog.Debug("sandbox.pool.shrink",
					slog.Int("total", p.total), slog.Float64("utilization", utilization))
			}
		}
	}
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
	p.recordOccupancy(p.ctx)
}

func (p *Pool) recordOccupancy(ctx context.Context) {
	if p.metrics == nil {
		return
	}
	p.mu.Lock()
	total, busy := p.total, len(p.busy)
	p.mu.Unlock()
	p.metrics.RecordPool(ctx, total, busy)
}
