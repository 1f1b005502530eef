// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

// Package executor implements the per-source execution backends the router
// dispatches to: local functions, MCP tool servers, sandboxed skills and
// remote agents. All four satisfy one polymorphic contract.
package executor

import (
	"context"
	"sync/atomic"

	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

// Status reports an executor's availability.
type Status int

const (
	// Idle means the executor can accept calls and none are in flight.
	Idle Status = iota
	// Busy means at least one call is in flight.
	Busy
	// Unavailable means the executor cannot serve calls.
	Unavailable
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case Unavailable:
		return "unavailable"
	}
	return "unknown"
}

// Executor runs one resolved tool call. Failures are carried in the result,
// never raised across the router boundary.
type Executor interface {
	Execute(ctx context.Context, def *tool.Definition, call tool.Call) tool.Result
	Status() Status
	Source() tool.Source
}

// inflight tracks concurrent executions for Status reporting.
type inflight struct {
	n atomic.Int64
}

func (f *inflight) enter() func() {
	f.n.Add(1)
	return func() { f.n.Add(-1) }
}

func (f *inflight) status() Status {
	if f.n.Load() > 0 {
		return Busy
	}
	return Idle
}
