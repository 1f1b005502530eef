// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"time"

	"github.com/google/uuid"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
)

// DefaultTimeout bounds a call when the caller does not set one.
const DefaultTimeout = 30 * time.Second

// Call is one tool invocation request. CallID is caller-generated and used
// for idempotent result correlation and tracing.
type Call struct {
	CallID    string          `json:"call_id"`
	ToolName  string          `json:"tool_name"`
	Arguments map[string]any  `json:"arguments"`
	Timeout   time.Duration   `json:"-"`
	TimeoutMS int64           `json:"timeout_ms,omitempty"`
	Caller    PermissionLevel `json:"-"`
}

// NewCall builds a call with a fresh CallID and the default timeout.
func NewCall(toolName string, arguments map[string]any) Call {
	return Call{
		CallID:    uuid.NewString(),
		ToolName:  toolName,
		Arguments: arguments,
		Timeout:   DefaultTimeout,
	}
}

// EffectiveTimeout resolves the call timeout, falling back to fallback and
// then to DefaultTimeout.
func (c Call) EffectiveTimeout(fallback time.Duration) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	if c.TimeoutMS > 0 {
		return time.Duration(c.TimeoutMS) * time.Millisecond
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultTimeout
}

// TokensUsed tracks token consumption for tools that proxy a model call.
type TokensUsed struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result is the outcome of one call. Exactly one of Value/Error is populated.
type Result struct {
	CallID        string           `json:"call_id"`
	Success       bool             `json:"success"`
	Value         any              `json:"result,omitempty"`
	ErrorCode     errors.ErrorCode `json:"error_code,omitempty"`
	ErrorMessage  string           `json:"error,omitempty"`
	ExecutionTime time.Duration    `json:"-"`
	ExecutionMS   int64            `json:"execution_time_ms"`
	Tokens        *TokensUsed      `json:"tokens_used,omitempty"`
}

// Success builds a successful result.
func Success(callID string, value any, elapsed time.Duration) Result {
	return Result{
		CallID:        callID,
		Success:       true,
		Value:         value,
		ExecutionTime: elapsed,
		ExecutionMS:   elapsed.Milliseconds(),
	}
}

// Failure builds an error result from any error, preserving its code.
func Failure(callID string, err error) Result {
	re := errors.AsRuntimeError(err)
	return Result{
		CallID:       callID,
		Success:      false,
		ErrorCode:    re.Code,
		ErrorMessage: re.Message,
	}
}

// FailureWithElapsed builds an error result that still reports how long the
// attempt ran, used for timeouts and limit breaches.
func FailureWithElapsed(callID string, err error, elapsed time.Duration) Result {
	r := Failure(callID, err)
	r.ExecutionTime = elapsed
	r.ExecutionMS = elapsed.Milliseconds()
	return r
}

// Err reconstructs the typed error carried by a failed result, or nil.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return errors.New(r.ErrorCode, r.ErrorMessage, nil)
}
