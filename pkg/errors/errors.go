// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling for the tool execution
// runtime. Every failure that crosses a component boundary carries an
// ErrorCode so callers and metrics can distinguish capacity problems from
// caller mistakes.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies runtime errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeToolNotFound indicates no registered tool matched the name.
	CodeToolNotFound ErrorCode = "TOOL_NOT_FOUND"

	// CodeAmbiguousTool indicates an unqualified name matched more than one tool.
	CodeAmbiguousTool ErrorCode = "AMBIGUOUS_TOOL"

	// CodeInvalidArguments indicates arguments failed schema validation.
	CodeInvalidArguments ErrorCode = "INVALID_ARGUMENTS"

	// CodeDuplicateID indicates a registration collided with an existing id
	// under a policy that forbids overwrite.
	CodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// CodePermissionDenied indicates the caller lacks the tool's required permission.
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// CodeTimeout indicates a call exceeded its deadline.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeResourceLimitExceeded indicates a sandbox breached a CPU/memory/time ceiling.
	CodeResourceLimitExceeded ErrorCode = "RESOURCE_LIMIT_EXCEEDED"

	// CodeSandboxSpawnError indicates a sandbox instance could not be created.
	CodeSandboxSpawnError ErrorCode = "SANDBOX_SPAWN_ERROR"

	// CodePoolExhausted indicates the sandbox pool is at capacity.
	CodePoolExhausted ErrorCode = "POOL_EXHAUSTED"

	// CodeExtractionParseError indicates the model's extraction output was not valid JSON.
	CodeExtractionParseError ErrorCode = "EXTRACTION_PARSE_ERROR"

	// CodeExternalServiceError wraps transport failures of server/agent executors.
	CodeExternalServiceError ErrorCode = "EXTERNAL_SERVICE_ERROR"

	// CodeNotInitialized indicates a dispatch was attempted before Initialize.
	CodeNotInitialized ErrorCode = "NOT_INITIALIZED"

	// CodeMemoryError indicates a memory store failure.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"
)

// RuntimeError is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type RuntimeError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
	StatusCode  int // for HTTP responses
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *RuntimeError) MarshalJSON() ([]byte, error) {
	type Alias RuntimeError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new RuntimeError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		StatusCode: codeToStatusCode(code),
	}
}

// Newf creates a new RuntimeError with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *RuntimeError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *RuntimeError) WithContext(key string, value interface{}) *RuntimeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *RuntimeError) WithRecoverable(recoverable bool) *RuntimeError {
	e.Recoverable = recoverable
	return e
}

// AsRuntimeError attempts to convert an error to a RuntimeError.
// Returns the error as RuntimeError if it is one, or wraps it otherwise.
func AsRuntimeError(err error) *RuntimeError {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RuntimeError); ok {
		return re
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the ErrorCode of err, or CodeInternal for untyped errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if re, ok := err.(*RuntimeError); ok {
		return re.Code
	}
	return CodeInternal
}

// IsCapacity reports whether the code indicates a capacity problem rather
// than a caller mistake. Capacity errors are surfaced separately in metrics.
func IsCapacity(code ErrorCode) bool {
	switch code {
	case CodePoolExhausted, CodeResourceLimitExceeded, CodeSandboxSpawnError:
		return true
	}
	return false
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeToolNotFound:
		return 404
	case CodeAmbiguousTool:
		return 409
	case CodeDuplicateID:
		return 409
	case CodeInvalidArguments, CodeExtractionParseError:
		return 400
	case CodePermissionDenied:
		return 403
	case CodeTimeout:
		return 408
	case CodeResourceLimitExceeded, CodePoolExhausted:
		return 429
	case CodeExternalServiceError:
		return 502
	case CodeNotInitialized:
		return 503
	default:
		return 500
	}
}
