// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"time"

	"github.com/lamwimham/neuroflow-sub001/pkg/sandbox"
	"github.com/lamwimham/neuroflow-sub001/pkg/skills"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

// SkillExecutor routes skill calls through the sandbox pool. It is the only
// executor that runs less-trusted code; isolation and limit enforcement live
// entirely in the pool.
type SkillExecutor struct {
	pool     *sandbox.Pool
	registry *skills.Registry
	inflight inflight
}

// NewSkillExecutor wires the executor to its pool and skill registry.
func NewSkillExecutor(pool *sandbox.Pool, registry *skills.Registry) *SkillExecutor {
	return &SkillExecutor{pool: pool, registry: registry}
}

// Execute looks up the skill's program and runs it inside a borrowed
// sandbox instance.
func (e *SkillExecutor) Execute(ctx context.Context, def *tool.Definition, call tool.Call) tool.Result {
	program, err := e.registry.Program(skillName(def))
	if err != nil {
		return tool.Failure(call.CallID, err)
	}

	defer e.inflight.enter()()

	start := time.Now()
	value, err := e.pool.Invoke(ctx, sandbox.Request{
		CallID:  call.CallID,
		Payload: program,
		Args:    call.Arguments,
	})
	elapsed := time.Since(start)

	if err != nil {
		return tool.FailureWithElapsed(call.CallID, err, elapsed)
	}
	return tool.Success(call.CallID, value, elapsed)
}

// Status reports Unavailable once the pool is gone.
func (e *SkillExecutor) Status() Status {
	if e.pool == nil {
		return Unavailable
	}
	return e.inflight.status()
}

// Source returns the capability source this executor serves.
func (e *SkillExecutor) Source() tool.Source { return tool.SourceSkill }

// skillName resolves which skill a definition points at. Definitions built
// from skill specs carry the plain skill name.
func skillName(def *tool.Definition) string {
	if name, ok := def.Metadata["skill"].(string); ok && name != "" {
		return name
	}
	return def.Name
}

var _ Executor = (*SkillExecutor)(nil)
