// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
)

// State is an instance's lifecycle position.
type State int

const (
	// Starting means the instance is allocating its execution context.
	Starting State = iota
	// Ready means the instance can accept an invocation.
	Ready
	// Executing means a payload is running.
	Executing
	// Draining means the instance finished its last invocation and will be
	// destroyed once released; it accepts no further work.
	Draining
	// Destroyed means resources are released. Terminal.
	Destroyed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Executing:
		return "executing"
	case Draining:
		return "draining"
	case Destroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Payload is the unit of untrusted work an instance runs. It must honor ctx
// cancellation and account allocations through the budget in ctx.
type Payload func(ctx context.Context, args map[string]any) (any, error)

// Request is one invocation handed to an instance.
type Request struct {
	CallID  string
	Payload Payload
	Args    map[string]any
}

// Instance is one isolated execution context. It is owned by the pool;
// executors borrow it for a single invocation and must not retain it.
type Instance struct {
	id     string
	limits ResourceLimits

	mu          sync.Mutex
	state       State
	invocations int
	retireAfter int
}

// newInstance allocates an instance and moves it Starting→Ready.
func newInstance(limits ResourceLimits, retireAfter int) (*Instance, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	inst := &Instance{
		id:          uuid.NewString(),
		limits:      limits,
		state:       Starting,
		retireAfter: retireAfter,
	}
	inst.mu.Lock()
	inst.state = Ready
	inst.mu.Unlock()
	slog.Debug("sandbox.spawn", slog.String("instance", inst.id), slog.String("limits", limits.String()))
	return inst, nil
}

// ID returns the instance identifier.
func (i *Instance) ID() string { return i.id }

// State returns the current lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Invocations reports how many payloads the instance has run.
func (i *Instance) Invocations() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.invocations
}

type payloadResult struct {
	value any
	err   error
}

// Invoke runs one payload under the instance's limits. The instance moves
// Ready→Executing→Ready, or →Draining when it hits its retirement count, or
// →Destroyed on a limit breach (a breached instance is never reused). The
// caller's ctx bounds the invocation alongside the wall-clock ceiling;
// whichever fires first wins.
func (i *Instance) Invoke(ctx context.Context, req Request) (any, error) {
	i.mu.Lock()
	if i.state != Ready {
		state := i.state
		i.mu.Unlock()
		return nil, errors.Newf(errors.CodeSandboxSpawnError,
			"instance %s not ready (state %s)", i.id, state)
	}
	i.state = Executing
	i.invocations++
	i.mu.Unlock()

	budget := newBudget(i.limits)
	runCtx, cancel := context.WithTimeout(ctx, i.limits.WallClock)
	defer cancel()
	runCtx = context.WithValue(runCtx, budgetKey{}, budget)
	runCtx = context.WithValue(runCtx, clientKey{},
		i.limits.Network.HTTPClient(i.limits.WallClock))

	done := make(chan payloadResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- payloadResult{err: errors.Newf(errors.CodeResourceLimitExceeded,
					"payload panicked: %v", r)}
			}
		}()
		value, err := req.Payload(runCtx, req.Args)
		done <- payloadResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		// Deadline wins over a result that raced it: a cancelled call must
		// always surface as such, never as a late success.
		if runCtx.Err() != nil {
			i.forceTerminate("wall clock breached", req.CallID)
			if ctx.Err() != nil {
				return nil, errors.New(errors.CodeTimeout, "invocation cancelled", ctx.Err())
			}
			return nil, errors.Newf(errors.CodeResourceLimitExceeded,
				"instance %s exceeded wall clock limit %s", i.id, i.limits.WallClock)
		}
		if budget.Breached() || errors.CodeOf(res.err) == errors.CodeResourceLimitExceeded {
			i.forceTerminate("resource limit breached", req.CallID)
			if res.err != nil {
				return nil, res.err
			}
			return nil, errors.Newf(errors.CodeResourceLimitExceeded,
				"instance %s breached its memory ceiling", i.id)
		}
		i.finish()
		return res.value, res.err

	case <-runCtx.Done():
		// Wall-clock breach or caller cancellation. Either way the payload
		// is abandoned and the instance cannot be trusted again.
		i.forceTerminate("wall clock breached", req.CallID)
		if ctx.Err() != nil {
			return nil, errors.New(errors.CodeTimeout, "invocation cancelled", ctx.Err())
		}
		return nil, errors.Newf(errors.CodeResourceLimitExceeded,
			"instance %s exceeded wall clock limit %s", i.id, i.limits.WallClock)
	}
}

// finish returns the instance to Ready, or marks it Draining when it has hit
// its retirement count.
func (i *Instance) finish() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != Executing {
		return
	}
	if i.retireAfter > 0 && i.invocations >= i.retireAfter {
		i.state = Draining
		slog.Debug("sandbox.retire", slog.String("instance", i.id), slog.Int("invocations", i.invocations))
		return
	}
	i.state = Ready
}

// forceTerminate destroys the instance immediately after a breach.
func (i *Instance) forceTerminate(reason, callID string) {
	i.mu.Lock()
	already := i.state == Destroyed
	i.state = Destroyed
	i.mu.Unlock()
	if !already {
		slog.Warn("sandbox.terminate",
			slog.String("instance", i.id),
			slog.String("call_id", callID),
			slog.String("reason", reason))
	}
}

// Destroy releases the instance. Idempotent: destroying a destroyed instance
// is a no-op.
func (i *Instance) Destroy() {
	i.mu.Lock()
	already := i.state == Destroyed
	i.state = Destroyed
	i.mu.Unlock()
	if !already {
		slog.Debug("sandbox.destroy", slog.String("instance", i.id))
	}
}
