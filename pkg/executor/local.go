// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"sync"
	"time"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

// Func is an in-process tool implementation. The fastest path; used for
// trusted, framework-provided tools.
type Func func(ctx context.Context, args map[string]any) (any, error)

// LocalExecutor invokes registered in-process functions. Completed results
// are cached by call id so a retried call never double-applies.
type LocalExecutor struct {
	mu    sync.RWMutex
	funcs map[string]Func

	cacheMu  sync.Mutex
	cache    map[string]tool.Result
	cacheCap int

	inflight inflight
}

// NewLocalExecutor creates an empty local executor.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{
		funcs:    make(map[string]Func),
		cache:    make(map[string]tool.Result),
		cacheCap: 1024,
	}
}

// Register binds a function to a tool name; last registration wins.
func (e *LocalExecutor) Register(name string, fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funcs[name] = fn
}

// Execute runs the function registered under the definition's name.
func (e *LocalExecutor) Execute(ctx context.Context, def *tool.Definition, call tool.Call) tool.Result {
	if cached, ok := e.cachedResult(call.CallID); ok {
		return cached
	}

	e.mu.RLock()
	fn, ok := e.funcs[def.Name]
	e.mu.RUnlock()
	if !ok {
		return tool.Failure(call.CallID, errors.Newf(errors.CodeToolNotFound,
			"no local function registered for %q", def.Name))
	}

	defer e.inflight.enter()()

	start := time.Now()
	value, err := fn(ctx, call.Arguments)
	elapsed := time.Since(start)

	var result tool.Result
	if err != nil {
		result = tool.FailureWithElapsed(call.CallID, err, elapsed)
	} else {
		result = tool.Success(call.CallID, value, elapsed)
	}
	e.storeResult(call.CallID, result)
	return result
}

// Status reports executor availability.
func (e *LocalExecutor) Status() Status { return e.inflight.status() }

// Source returns the capability source this executor serves.
func (e *LocalExecutor) Source() tool.Source { return tool.SourceLocal }

func (e *LocalExecutor) cachedResult(callID string) (tool.Result, bool) {
	if callID == "" {
		return tool.Result{}, false
	}
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	r, ok := e.cache[callID]
	return r, ok
}

func (e *LocalExecutor) storeResult(callID string, result tool.Result) {
	if callID == "" {
		return
	}
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	// The cache only has to cover short retry windows; reset wholesale at
	// capacity instead of tracking eviction order.
	if len(e.cache) >= e.cacheCap {
		e.cache = make(map[string]tool.Result)
	}
	e.cache[callID] = result
}

var _ Executor = (*LocalExecutor)(nil)
