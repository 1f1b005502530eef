// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/llm"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

// resultRefPrefix marks an argument value that stands for another call's
// result, e.g. "$result:c1".
const resultRefPrefix = "$result:"

type roundCall struct {
	index    int
	callID   string
	toolName string
	args     map[string]any
	argsErr  error
	refs     []string
}

// executeRound dispatches one round of tool calls. Calls with no argument
// dependency run concurrently; a call whose arguments reference another
// call's result runs after it, sequentially in original order. Results come
// back attached in original call order regardless of completion order.
func (o *Orchestrator) executeRound(ctx context.Context, round int, toolCalls []llm.ToolCall) []Invocation {
	calls := make([]roundCall, len(toolCalls))
	for i, tc := range toolCalls {
		rc := roundCall{index: i, callID: callID(tc), toolName: tc.Function.Name}
		rc.args, rc.argsErr = tc.Function.ArgumentMap()
		if rc.argsErr == nil {
			rc.refs = collectRefs(rc.args)
		}
		calls[i] = rc
	}

	results := make([]tool.Result, len(calls))
	byID := make(map[string]*tool.Result, len(calls))

	var wg sync.WaitGroup
	for i := range calls {
		rc := &calls[i]
		if rc.argsErr != nil || len(rc.refs) > 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[rc.index] = o.dispatch(ctx, rc)
		}()
	}
	wg.Wait()

	for i := range calls {
		rc := &calls[i]
		if rc.argsErr == nil && len(rc.refs) == 0 {
			byID[rc.callID] = &results[rc.index]
		}
	}

	// Dependent calls run in original order so a call can consume any
	// earlier call's result.
	for i := range calls {
		rc := &calls[i]
		switch {
		case rc.argsErr != nil:
			results[rc.index] = tool.Failure(rc.callID,
				errors.New(errors.CodeInvalidArguments, "tool call arguments are not valid JSON", rc.argsErr))
		case len(rc.refs) > 0:
			rc.args = substituteRefs(rc.args, byID).(map[string]any)
			results[rc.index] = o.dispatch(ctx, rc)
		}
		byID[rc.callID] = &results[rc.index]
	}

	invocations := make([]Invocation, len(calls))
	for i := range calls {
		invocations[i] = Invocation{
			Round:     round,
			CallID:    calls[i].callID,
			ToolName:  calls[i].toolName,
			Arguments: calls[i].args,
			Result:    results[i],
		}
	}
	return invocations
}

func (o *Orchestrator) dispatch(ctx context.Context, rc *roundCall) tool.Result {
	return o.router.Dispatch(ctx, tool.Call{
		CallID:    rc.callID,
		ToolName:  rc.toolName,
		Arguments: rc.args,
		Caller:    o.caller,
	})
}

// collectRefs walks an argument tree for "$result:<call_id>" strings.
func collectRefs(value any) []string {
	var refs []string
	switch v := value.(type) {
	case string:
		if strings.HasPrefix(v, resultRefPrefix) {
			refs = append(refs, strings.TrimPrefix(v, resultRefPrefix))
		}
	case map[string]any:
		for _, item := range v {
			refs = append(refs, collectRefs(item)...)
		}
	case []any:
		for _, item := range v {
			refs = append(refs, collectRefs(item)...)
		}
	}
	return refs
}

// substituteRefs replaces reference strings with the referenced call's
// value. A reference to a missing or failed call is left untouched so the
// downstream tool surfaces a meaningful validation error.
func substituteRefs(value any, byID map[string]*tool.Result) any {
	switch v := value.(type) {
	case string:
		if strings.HasPrefix(v, resultRefPrefix) {
			id := strings.TrimPrefix(v, resultRefPrefix)
			if res, ok := byID[id]; ok && res.Success {
				return res.Value
			}
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = substituteRefs(item, byID)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = substituteRefs(item, byID)
		}
		return out
	default:
		return v
	}
}
