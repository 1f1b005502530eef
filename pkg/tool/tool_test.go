// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"testing"
	"time"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
)

func calcDef(t *testing.T) *Definition {
	t.Helper()
	def, err := NewBuilder("calculate").
		Description("Evaluate an arithmetic expression").
		StringParam("expression", "expression to evaluate", true).
		DefaultParam("precision", "integer", "decimal places", 2).
		Returns("number").
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return def
}

func TestBuilderDefaults(t *testing.T) {
	def := calcDef(t)
	if def.ID != "calculate" || def.Source != SourceLocal || !def.Enabled {
		t.Fatalf("unexpected defaults: %+v", def)
	}
	if def.Mode != ModeSync {
		t.Fatalf("expected sync mode, got %s", def.Mode)
	}
}

func TestDefinitionValidate(t *testing.T) {
	bad := &Definition{ID: "x", Name: "x", Source: "nope"}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unknown source")
	}

	dup := &Definition{ID: "x", Name: "x", Source: SourceLocal, Parameters: []Parameter{
		{Name: "a", Type: "string"},
		{Name: "a", Type: "string"},
	}}
	if err := dup.Validate(); err == nil {
		t.Fatal("expected error for duplicate parameter")
	}

	badType := &Definition{ID: "x", Name: "x", Source: SourceLocal, Parameters: []Parameter{
		{Name: "a", Type: "text"},
	}}
	if err := badType.Validate(); err == nil {
		t.Fatal("expected error for unknown parameter type")
	}
}

func TestValidateArguments(t *testing.T) {
	def := calcDef(t)

	args, err := def.ValidateArguments(map[string]any{"expression": "2+2"}, true)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if args["precision"] != float64(2) {
		t.Fatalf("expected default precision 2, got %v", args["precision"])
	}

	if _, err := def.ValidateArguments(map[string]any{}, true); err == nil {
		t.Fatal("expected missing required error")
	}
	if _, err := def.ValidateArguments(map[string]any{"expression": 7}, true); err == nil {
		t.Fatal("expected type mismatch error")
	}
	if _, err := def.ValidateArguments(map[string]any{"expression": "1", "bogus": 1}, true); err == nil {
		t.Fatal("expected unknown-argument error under strict mode")
	}
	if _, err := def.ValidateArguments(map[string]any{"expression": "1", "bogus": 1}, false); err != nil {
		t.Fatalf("non-strict mode should tolerate extras: %v", err)
	}
}

func TestValidateArgumentsCode(t *testing.T) {
	def := calcDef(t)
	_, err := def.ValidateArguments(nil, true)
	if errors.CodeOf(err) != errors.CodeInvalidArguments {
		t.Fatalf("expected INVALID_ARGUMENTS, got %v", errors.CodeOf(err))
	}
}

func TestSchemaShape(t *testing.T) {
	def := calcDef(t)
	fs := def.Schema()
	if fs.Name != "calculate" {
		t.Fatalf("unexpected name %q", fs.Name)
	}
	props, ok := fs.Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatal("expected properties map")
	}
	if _, ok := props["expression"]; !ok {
		t.Fatal("expected expression property")
	}
	required, ok := fs.Parameters["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "expression" {
		t.Fatalf("unexpected required list: %v", fs.Parameters["required"])
	}

	oa := def.OpenAISchema()
	if oa["type"] != "function" {
		t.Fatal("expected openai function envelope")
	}
	an := def.AnthropicSchema()
	if _, ok := an["input_schema"]; !ok {
		t.Fatal("expected anthropic input_schema")
	}
}

func TestCallEffectiveTimeout(t *testing.T) {
	c := NewCall("calculate", nil)
	if c.EffectiveTimeout(0) != DefaultTimeout {
		t.Fatal("expected default timeout")
	}
	c.Timeout = time.Second
	if c.EffectiveTimeout(5*time.Second) != time.Second {
		t.Fatal("explicit timeout must win")
	}
	c.Timeout = 0
	c.TimeoutMS = 1500
	if c.EffectiveTimeout(0) != 1500*time.Millisecond {
		t.Fatal("timeout_ms must be honored")
	}
	c.TimeoutMS = 0
	if c.EffectiveTimeout(5*time.Second) != 5*time.Second {
		t.Fatal("fallback must apply")
	}
}

func TestResultExclusivity(t *testing.T) {
	ok := Success("c1", 4.0, 12*time.Millisecond)
	if !ok.Success || ok.ErrorMessage != "" || ok.ExecutionMS != 12 {
		t.Fatalf("unexpected success result: %+v", ok)
	}
	fail := Failure("c2", errors.New(errors.CodeToolNotFound, "nonexistent", nil))
	if fail.Success || fail.Value != nil {
		t.Fatalf("unexpected failure result: %+v", fail)
	}
	if fail.ErrorCode != errors.CodeToolNotFound {
		t.Fatalf("expected TOOL_NOT_FOUND, got %s", fail.ErrorCode)
	}
	if fail.Err() == nil {
		t.Fatal("expected reconstructed error")
	}
}
