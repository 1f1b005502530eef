// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"testing"

	"github.com/lamwimham/neuroflow-sub001/pkg/executor"
	"github.com/lamwimham/neuroflow-sub001/pkg/router"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

func TestEvalExpression(t *testing.T) {
	cases := []struct {
		expression string
		want       float64
	}{
		{"2+2", 4},
		{"2 + 3 * 4", 14},
		{"(2+3)*4", 20},
		{"10/4", 2.5},
		{"-3 + 5", 2},
		{"2*(3+(4-1))", 12},
		{"3.5 * 2", 7},
	}
	for _, tc := range cases {
		got, err := evalExpression(tc.expression)
		if err != nil {
			t.Fatalf("%q: %v", tc.expression, err)
		}
		if got != tc.want {
			t.Fatalf("%q: expected %v, got %v", tc.expression, tc.want, got)
		}
	}
}

func TestEvalExpressionErrors(t *testing.T) {
	for _, expression := range []string{"", "2+", "(2+3", "1/0", "2**3", "abc"} {
		if _, err := evalExpression(expression); err == nil {
			t.Fatalf("%q: expected error", expression)
		}
	}
}

func TestRegisterBuiltins(t *testing.T) {
	rt := router.New()
	local := executor.NewLocalExecutor()
	if err := registerBuiltins(rt, local); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	rt.BindExecutor(local)
	if err := rt.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	result := rt.Dispatch(context.Background(), tool.Call{
		CallID:    "c1",
		ToolName:  "calculate",
		Arguments: map[string]any{"expression": "(2+3)*4"},
	})
	if !result.Success || result.Value != 20.0 {
		t.Fatalf("calculate failed: %+v", result)
	}

	result = rt.Dispatch(context.Background(), tool.Call{
		CallID:    "c2",
		ToolName:  "echo",
		Arguments: map[string]any{"message": "hello"},
	})
	if !result.Success || result.Value != "hello" {
		t.Fatalf("echo failed: %+v", result)
	}
}
