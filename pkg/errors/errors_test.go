// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := New(CodeToolNotFound, "tool missing", nil)
	want := "[TOOL_NOT_FOUND] tool missing"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}

	wrapped := New(CodeTimeout, "dispatch", fmt.Errorf("deadline"))
	if wrapped.Error() != "[TIMEOUT] dispatch: deadline" {
		t.Fatalf("unexpected format: %q", wrapped.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := New(CodeExternalServiceError, "agent call failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the cause")
	}
}

func TestAsRuntimeError(t *testing.T) {
	re := New(CodePoolExhausted, "no instances", nil)
	if got := AsRuntimeError(re); got != re {
		t.Fatal("expected identity for RuntimeError")
	}

	plain := fmt.Errorf("boom")
	got := AsRuntimeError(plain)
	if got.Code != CodeInternal {
		t.Fatalf("expected INTERNAL_ERROR, got %s", got.Code)
	}
	if !errors.Is(got, plain) {
		t.Fatal("expected wrapped cause")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != "" {
		t.Fatal("expected empty code for nil")
	}
	if CodeOf(New(CodeAmbiguousTool, "x", nil)) != CodeAmbiguousTool {
		t.Fatal("expected AMBIGUOUS_TOOL")
	}
	if CodeOf(fmt.Errorf("plain")) != CodeInternal {
		t.Fatal("expected INTERNAL_ERROR for untyped error")
	}
}

func TestStatusCodes(t *testing.T) {
	cases := map[ErrorCode]int{
		CodeToolNotFound:          404,
		CodeInvalidArguments:      400,
		CodePermissionDenied:      403,
		CodeTimeout:               408,
		CodePoolExhausted:         429,
		CodeResourceLimitExceeded: 429,
		CodeExternalServiceError:  502,
		CodeNotInitialized:        503,
		CodeInternal:              500,
	}
	for code, want := range cases {
		if got := New(code, "x", nil).StatusCode; got != want {
			t.Fatalf("code %s: expected status %d, got %d", code, want, got)
		}
	}
}

func TestIsCapacity(t *testing.T) {
	if !IsCapacity(CodePoolExhausted) || !IsCapacity(CodeResourceLimitExceeded) {
		t.Fatal("expected capacity codes to be flagged")
	}
	if IsCapacity(CodeToolNotFound) || IsCapacity(CodeInvalidArguments) {
		t.Fatal("caller-mistake codes must not be capacity")
	}
}

func TestWithContextChaining(t *testing.T) {
	err := New(CodeTimeout, "dispatch", nil).
		WithContext("tool", "calculate").
		WithRecoverable(true)
	if err.Context["tool"] != "calculate" {
		t.Fatal("expected context value")
	}
	if !err.Recoverable {
		t.Fatal("expected recoverable")
	}
}
