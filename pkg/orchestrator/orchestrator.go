// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator drives one user turn: it asks the model what to do,
// dispatches the requested tool calls through the router, feeds results
// back and repeats until the model produces a final answer or the round
// limit is hit.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/knowledge"
	"github.com/lamwimham/neuroflow-sub001/pkg/llm"
	"github.com/lamwimham/neuroflow-sub001/pkg/memory"
	"github.com/lamwimham/neuroflow-sub001/pkg/router"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

// DefaultMaxRounds bounds model round-trips within one turn.
const DefaultMaxRounds = 8

// Invocation records one tool call made during a turn, for auditability.
type Invocation struct {
	Round     int            `json:"round"`
	CallID    string         `json:"call_id"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    tool.Result    `json:"result"`
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	Answer      string       `json:"answer"`
	Rounds      int          `json:"rounds"`
	Invocations []Invocation `json:"invocations,omitempty"`
	Usage       llm.Usage    `json:"usage"`
}

// Orchestrator runs turns against one router and one model provider.
type Orchestrator struct {
	router   *router.Router
	provider llm.Provider
	log      memory.ConversationLog
	analyzer *knowledge.Analyzer

	model       string
	temperature float64
	maxRounds   int
	systemText  string
	caller      tool.PermissionLevel
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithModel sets the model name sent on chat requests.
func WithModel(model string) Option {
	return func(o *Orchestrator) { o.model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temperature float64) Option {
	return func(o *Orchestrator) { o.temperature = temperature }
}

// WithMaxRounds overrides the round limit.
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithSystemPrompt sets the system message prepended to every turn.
func WithSystemPrompt(text string) Option {
	return func(o *Orchestrator) { o.systemText = text }
}

// WithCaller sets the permission level tool calls run under.
func WithCaller(level tool.PermissionLevel) Option {
	return func(o *Orchestrator) { o.caller = level }
}

// WithAnalyzer enables knowledge extraction after turns.
func WithAnalyzer(a *knowledge.Analyzer) Option {
	return func(o *Orchestrator) { o.analyzer = a }
}

// New creates an orchestrator.
func New(r *router.Router, provider llm.Provider, log memory.ConversationLog, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		router:    r,
		provider:  provider,
		log:       log,
		model:     "qwen2.5",
		maxRounds: DefaultMaxRounds,
		caller:    tool.PermissionUser,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Turn processes one user message through to a final answer. Individual
// tool failures are reported back to the model inside the loop; only
// model-call failures and the round limit abort the turn.
func (o *Orchestrator) Turn(ctx context.Context, agentID, conversationID, userMessage string) (*TurnResult, error) {
	if err := o.log.Append(ctx, conversationID, memory.Turn{Role: "user", Content: userMessage}); err != nil {
		return nil, err
	}
	messages, err := o.history(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{}
	for round := 1; round <= o.maxRounds; round++ {
		resp, err := o.provider.Chat(ctx, llm.ChatRequest{
			Model:       o.model,
			Messages:    messages,
			Tools:       o.modelTools(),
			Temperature: o.temperature,
		})
		if err != nil {
			return nil, errors.New(errors.CodeExternalServiceError, "model call failed", err)
		}
		result.Rounds = round
		accumulate(&result.Usage, resp.Usage)

		if len(resp.ToolCalls) == 0 {
			result.Answer = resp.Content
			if err := o.log.Append(ctx, conversationID, memory.Turn{Role: "assistant", Content: resp.Content}); err != nil {
				return nil, err
			}
			o.afterTurn(ctx, agentID, conversationID)
			return result, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		invocations := o.executeRound(ctx, round, resp.ToolCalls)
		result.Invocations = append(result.Invocations, invocations...)
		for _, inv := range invocations {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: inv.CallID,
				Content:    resultContent(inv.Result),
			})
		}
	}

	return nil, errors.Newf(errors.CodeInternal,
		"turn exceeded %d rounds without a final answer", o.maxRounds)
}

func (o *Orchestrator) history(ctx context.Context, conversationID string) ([]llm.Message, error) {
	turns, err := o.log.Turns(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	messages := make([]llm.Message, 0, len(turns)+1)
	if o.systemText != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: o.systemText})
	}
	for _, t := range turns {
		if t.Role != llm.RoleUser && t.Role != llm.RoleAssistant {
			continue
		}
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	return messages, nil
}

func (o *Orchestrator) modelTools() []llm.Tool {
	schemas := o.router.SchemasForModel(o.caller)
	tools := make([]llm.Tool, 0, len(schemas))
	for _, s := range schemas {
		tools = append(tools, llm.FunctionTool(s.Name, s.Description, s.Parameters))
	}
	return tools
}

func (o *Orchestrator) afterTurn(ctx context.Context, agentID, conversationID string) {
	if o.analyzer == nil {
		return
	}
	if _, err := o.analyzer.MaybeAnalyze(ctx, agentID, conversationID); err != nil {
		// Extraction is a background concern; a failed pass never fails
		// the turn that triggered it.
		slog.Warn("orchestrator.extraction_failed",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
	}
}

func accumulate(total *llm.Usage, u llm.Usage) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}

// resultContent renders a tool result for the model. Failures carry the
// error code so the model can decide to retry or switch tools.
func resultContent(r tool.Result) string {
	payload := map[string]any{"success": r.Success}
	if r.Success {
		payload["result"] = r.Value
	} else {
		payload["error"] = r.ErrorMessage
		payload["error_code"] = string(r.ErrorCode)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return `{"success":false,"error":"unserializable tool result"}`
	}
	return string(raw)
}

func callID(tc llm.ToolCall) string {
	if tc.ID != "" {
		return tc.ID
	}
	return uuid.NewString()
}
