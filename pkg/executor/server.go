// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"strings"
	"time"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/mcp"
	"github.com/lamwimham/neuroflow-sub001/pkg/mcp/pool"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

// ServerExecutor serializes calls to external MCP tool servers through the
// shared connection pool. Transport failures surface as
// ExternalServiceError; the server's own timeout/retry policy lives in the
// mcp client wrapper.
type ServerExecutor struct {
	pool     *pool.Pool
	inflight inflight
}

// NewServerExecutor wires the executor to its connection pool.
func NewServerExecutor(p *pool.Pool) *ServerExecutor {
	return &ServerExecutor{pool: p}
}

// Execute forwards the call to the definition's server. The dedup key rides
// along in the arguments so a cooperating server can drop retries.
func (e *ServerExecutor) Execute(ctx context.Context, def *tool.Definition, call tool.Call) tool.Result {
	server, toolName := serverAndTool(def)
	if server == "" {
		return tool.Failure(call.CallID, errors.Newf(errors.CodeToolNotFound,
			"definition %q carries no server binding", def.Name))
	}

	client, err := e.pool.Get(ctx, server)
	if err != nil {
		return tool.Failure(call.CallID, err)
	}

	defer e.inflight.enter()()

	args := call.Arguments
	if call.CallID != "" {
		args = make(map[string]any, len(call.Arguments)+1)
		for k, v := range call.Arguments {
			args[k] = v
		}
		args["_dedup_key"] = call.CallID
	}

	start := time.Now()
	raw, err := client.CallTool(ctx, toolName, args)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return tool.FailureWithElapsed(call.CallID,
				errors.New(errors.CodeTimeout, "mcp call cancelled", ctx.Err()), elapsed)
		}
		return tool.FailureWithElapsed(call.CallID,
			errors.New(errors.CodeExternalServiceError, "mcp call failed", err), elapsed)
	}

	value, err := mcp.Output(raw)
	if err != nil {
		return tool.FailureWithElapsed(call.CallID, err, elapsed)
	}
	return tool.Success(call.CallID, value, elapsed)
}

// Status reports Unavailable without a pool.
func (e *ServerExecutor) Status() Status {
	if e.pool == nil {
		return Unavailable
	}
	return e.inflight.status()
}

// Source returns the capability source this executor serves.
func (e *ServerExecutor) Source() tool.Source { return tool.SourceServer }

// serverAndTool splits a definition into its server name and server-side
// tool name, preferring the adapter metadata over the qualified name.
func serverAndTool(def *tool.Definition) (string, string) {
	server, _ := def.Metadata["server"].(string)
	toolName, _ := def.Metadata["mcp_tool"].(string)
	if server != "" && toolName != "" {
		return server, toolName
	}
	if idx := strings.Index(def.Name, ":"); idx > 0 {
		return def.Name[:idx], def.Name[idx+1:]
	}
	return server, def.Name
}

var _ Executor = (*ServerExecutor)(nil)
