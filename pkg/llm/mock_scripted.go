// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedMockProvider returns a pre-defined sequence of responses. Useful
// for testing multi-round interactions: each Chat call pops the next
// response, so a script of tool-call rounds followed by a final answer
// drives an orchestrator turn deterministically.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	script    []*ChatResponse
	Err       error
	CallCount int

	// Requests records every request seen, for assertions.
	Requests []ChatRequest
}

// NewScriptedMockProvider scripts plain-text responses.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	s := &ScriptedMockProvider{}
	for _, content := range responses {
		s.script = append(s.script, &ChatResponse{
			Content: content,
			Usage:   Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
		})
	}
	return s
}

// NewScriptedResponses scripts full responses, tool calls included.
func NewScriptedResponses(responses ...*ChatResponse) *ScriptedMockProvider {
	return &ScriptedMockProvider{script: responses}
}

// ToolCallResponse builds a scripted response requesting the given calls.
func ToolCallResponse(calls ...ToolCall) *ChatResponse {
	return &ChatResponse{
		ToolCalls: calls,
		Usage:     Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}
}

// Call builds one tool call with JSON-encoded arguments.
func Call(id, name, arguments string) ToolCall {
	return ToolCall{
		ID:       id,
		Type:     "function",
		Function: FunctionCall{Name: name, Arguments: arguments},
	}
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.script) == 0 {
		return nil, errors.New("scripted mock: no more responses available")
	}

	resp := s.script[0]
	s.script = s.script[1:]
	return resp, nil
}

// Add appends a response to the queue.
func (s *ScriptedMockProvider) Add(resp *ChatResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, resp)
}

// Remaining reports how many scripted responses are left.
func (s *ScriptedMockProvider) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.script)
}
