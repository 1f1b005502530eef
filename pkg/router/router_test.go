// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/executor"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

func echoDef(t *testing.T, name string) *tool.Definition {
	t.Helper()
	def, err := tool.NewBuilder(name).
		Description("echo " + name).
		Source(tool.SourceLocal).
		StringParam("msg", "text to echo", false).
		Build()
	if err != nil {
		t.Fatalf("build definition: %v", err)
	}
	return def
}

func echoFunc(context.Context, map[string]any) (any, error) {
	return "ok", nil
}

// testRouter returns an initialized router with a local executor bound and
// the given tool names registered as echo tools.
func testRouter(t *testing.T, names ...string) (*Router, *executor.LocalExecutor) {
	t.Helper()
	r := New(WithDefaultTimeout(2 * time.Second))
	local := executor.NewLocalExecutor()
	for _, name := range names {
		if err := r.Register(echoDef(t, name)); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		local.Register(name, echoFunc)
	}
	r.BindExecutor(local)
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return r, local
}

func TestRegisterAndResolve(t *testing.T) {
	r, _ := testRouter(t, "calculate")
	def, err := r.Resolve(context.Background(), "calculate")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if def.Name != "calculate" {
		t.Fatalf("resolved wrong tool: %s", def.Name)
	}
}

func TestRegisterInvalidDefinition(t *testing.T) {
	r := New()
	if err := r.Register(nil); errors.CodeOf(err) != errors.CodeInvalidArguments {
		t.Fatalf("expected InvalidArguments for nil, got %v", err)
	}
	bad := &tool.Definition{Name: ""}
	if err := r.Register(bad); errors.CodeOf(err) != errors.CodeInvalidArguments {
		t.Fatalf("expected InvalidArguments for empty name, got %v", err)
	}
}

func TestRegisterOverwriteByID(t *testing.T) {
	r, _ := testRouter(t, "calculate")

	updated, err := tool.NewBuilder("calc_v2").
		ID("calculate").
		Description("updated calculator").
		Source(tool.SourceLocal).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := r.Register(updated); err != nil {
		t.Fatalf("overwrite by id: %v", err)
	}

	if _, err := r.Resolve(context.Background(), "calculate"); errors.CodeOf(err) != errors.CodeToolNotFound {
		t.Fatalf("old name should be gone after overwrite, got %v", err)
	}
	def, err := r.Resolve(context.Background(), "calc_v2")
	if err != nil {
		t.Fatalf("resolve new name: %v", err)
	}
	if def.Description != "updated calculator" {
		t.Fatalf("expected updated definition, got %q", def.Description)
	}
}

func TestRegisterDuplicateIDForbidden(t *testing.T) {
	r := New(WithOverwritePolicy(false))
	if err := r.Register(echoDef(t, "calculate")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(echoDef(t, "calculate"))
	if errors.CodeOf(err) != errors.CodeDuplicateID {
		t.Fatalf("expected DuplicateId, got %v", err)
	}
}

func TestRegisterNameCollisionAcrossIDs(t *testing.T) {
	r := New()
	if err := r.Register(echoDef(t, "calculate")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	clash, err := tool.NewBuilder("calculate").ID("other-id").
		Description("same name, different id").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := r.Register(clash); errors.CodeOf(err) != errors.CodeDuplicateID {
		t.Fatalf("expected DuplicateId for name collision, got %v", err)
	}
}

func TestUnregister(t *testing.T) {
	r, _ := testRouter(t, "calculate")
	r.Unregister("calculate")
	if _, err := r.Resolve(context.Background(), "calculate"); errors.CodeOf(err) != errors.CodeToolNotFound {
		t.Fatalf("expected ToolNotFound after unregister, got %v", err)
	}
	// Unknown id is a no-op.
	r.Unregister("ghost")
}

func TestResolveSuffix(t *testing.T) {
	r, _ := testRouter(t, "files:search")
	def, err := r.Resolve(context.Background(), "search")
	if err != nil {
		t.Fatalf("suffix resolve: %v", err)
	}
	if def.Name != "files:search" {
		t.Fatalf("resolved wrong tool: %s", def.Name)
	}
}

func TestResolveAmbiguous(t *testing.T) {
	r, _ := testRouter(t, "files:search", "web:search")
	_, err := r.Resolve(context.Background(), "search")
	if errors.CodeOf(err) != errors.CodeAmbiguousTool {
		t.Fatalf("expected AmbiguousTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "files:search") || !strings.Contains(err.Error(), "web:search") {
		t.Fatalf("expected candidates in message, got %q", err.Error())
	}
}

func TestResolveNotFound(t *testing.T) {
	r, _ := testRouter(t, "calculate")
	if _, err := r.Resolve(context.Background(), "translate"); errors.CodeOf(err) != errors.CodeToolNotFound {
		t.Fatalf("expected ToolNotFound, got %v", err)
	}
}

// fixedEmbedder returns canned vectors keyed by substring so similarity is
// fully deterministic in tests.
type fixedEmbedder struct {
	vectors map[string][]float32
	deflt   []float32
}

func (f *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	for key, vec := range f.vectors {
		if strings.Contains(text, key) {
			return vec, nil
		}
	}
	return f.deflt, nil
}

func TestResolveSemanticFallback(t *testing.T) {
	embedder := &fixedEmbedder{
		vectors: map[string][]float32{
			"calculate": {1, 0, 0},
			"weather":   {0, 1, 0},
			"compute":   {0.9, 0.1, 0},
		},
		deflt: []float32{0, 0, 1},
	}
	r := New(WithSemanticResolver(embedder, 0.75))
	local := executor.NewLocalExecutor()
	for _, name := range []string{"calculate", "weather"} {
		if err := r.Register(echoDef(t, name)); err != nil {
			t.Fatalf("register: %v", err)
		}
		local.Register(name, echoFunc)
	}
	r.BindExecutor(local)
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	def, err := r.Resolve(context.Background(), "compute the sum")
	if err != nil {
		t.Fatalf("semantic resolve: %v", err)
	}
	if def.Name != "calculate" {
		t.Fatalf("expected semantic match to calculate, got %s", def.Name)
	}

	// Nothing registered is close to the default vector.
	if _, err := r.Resolve(context.Background(), "book a flight"); errors.CodeOf(err) != errors.CodeToolNotFound {
		t.Fatalf("expected ToolNotFound below floor, got %v", err)
	}
}

func TestDispatchNotInitialized(t *testing.T) {
	r := New()
	result := r.Dispatch(context.Background(), tool.Call{CallID: "c1", ToolName: "calculate"})
	if result.Success || result.ErrorCode != errors.CodeNotInitialized {
		t.Fatalf("expected NotInitialized, got %+v", result)
	}
}

func TestDispatchAfterShutdown(t *testing.T) {
	r, _ := testRouter(t, "calculate")
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	result := r.Dispatch(context.Background(), tool.Call{CallID: "c1", ToolName: "calculate"})
	if result.ErrorCode != errors.CodeNotInitialized {
		t.Fatalf("expected NotInitialized after shutdown, got %+v", result)
	}
}

func TestDispatchSuccess(t *testing.T) {
	r, _ := testRouter(t, "calculate")
	result := r.Dispatch(context.Background(), tool.Call{
		CallID:    "c1",
		ToolName:  "calculate",
		Arguments: map[string]any{"msg": "2+2"},
	})
	if !result.Success || result.Value != "ok" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.CallID != "c1" {
		t.Fatalf("call id not echoed: %q", result.CallID)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	r, _ := testRouter(t, "calculate")
	result := r.Dispatch(context.Background(), tool.Call{CallID: "c1", ToolName: "translate"})
	if result.Success || result.ErrorCode != errors.CodeToolNotFound {
		t.Fatalf("expected ToolNotFound, got %+v", result)
	}
}

func TestDispatchDisabledTool(t *testing.T) {
	r, local := testRouter(t)
	def, err := tool.NewBuilder("hidden").Description("disabled tool").Disabled().Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := r.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}
	local.Register("hidden", echoFunc)

	result := r.Dispatch(context.Background(), tool.Call{CallID: "c1", ToolName: "hidden"})
	if result.Success || result.ErrorCode != errors.CodeToolNotFound {
		t.Fatalf("expected disabled tool to be unreachable, got %+v", result)
	}
}

func TestDispatchInvalidArguments(t *testing.T) {
	r, local := testRouter(t)
	def, err := tool.NewBuilder("greet").
		Description("greeting").
		StringParam("name", "who to greet", true).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := r.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}
	local.Register("greet", echoFunc)

	// Missing required argument.
	result := r.Dispatch(context.Background(), tool.Call{CallID: "c1", ToolName: "greet"})
	if result.Success || result.ErrorCode != errors.CodeInvalidArguments {
		t.Fatalf("expected InvalidArguments for missing required, got %+v", result)
	}

	// Unknown argument under strict validation.
	result = r.Dispatch(context.Background(), tool.Call{
		CallID:    "c2",
		ToolName:  "greet",
		Arguments: map[string]any{"name": "ada", "bogus": true},
	})
	if result.Success || result.ErrorCode != errors.CodeInvalidArguments {
		t.Fatalf("expected InvalidArguments for unknown field, got %+v", result)
	}
}

func TestDispatchPermissionDenied(t *testing.T) {
	r, local := testRouter(t)
	def, err := tool.NewBuilder("wipe").
		Description("destructive admin tool").
		Permission(tool.PermissionAdmin).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := r.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}
	local.Register("wipe", echoFunc)

	result := r.Dispatch(context.Background(), tool.Call{
		CallID:   "c1",
		ToolName: "wipe",
		Caller:   tool.PermissionUser,
	})
	if result.Success || result.ErrorCode != errors.CodePermissionDenied {
		t.Fatalf("expected PermissionDenied, got %+v", result)
	}

	result = r.Dispatch(context.Background(), tool.Call{
		CallID:   "c2",
		ToolName: "wipe",
		Caller:   tool.PermissionAdmin,
	})
	if !result.Success {
		t.Fatalf("admin caller should pass, got %+v", result)
	}
}

func TestDispatchNoExecutorBound(t *testing.T) {
	r := New()
	if err := r.Register(echoDef(t, "calculate")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	result := r.Dispatch(context.Background(), tool.Call{CallID: "c1", ToolName: "calculate"})
	if result.Success || result.ErrorCode != errors.CodeInternal {
		t.Fatalf("expected Internal without an executor, got %+v", result)
	}
}

func TestDispatchTimeout(t *testing.T) {
	r, local := testRouter(t, "slow")
	local.Register("slow", func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return "too late", nil
		}
	})

	start := time.Now()
	result := r.Dispatch(context.Background(), tool.Call{
		CallID:   "c1",
		ToolName: "slow",
		Timeout:  30 * time.Millisecond,
	})
	if result.Success || result.ErrorCode != errors.CodeTimeout {
		t.Fatalf("expected Timeout, got %+v", result)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("dispatch did not honor deadline, took %v", elapsed)
	}
}

func TestList(t *testing.T) {
	r, local := testRouter(t, "beta", "alpha")
	def, err := tool.NewBuilder("gamma").
		Description("categorized tool").
		Category("math").
		Disabled().
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := r.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}
	local.Register("gamma", echoFunc)

	all := r.List(Filter{})
	if len(all) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(all))
	}
	if all[0].Name != "alpha" || all[1].Name != "beta" || all[2].Name != "gamma" {
		t.Fatalf("expected name order, got %v", []string{all[0].Name, all[1].Name, all[2].Name})
	}

	math := r.List(Filter{Category: "math"})
	if len(math) != 1 || math[0].Name != "gamma" {
		t.Fatalf("category filter failed: %+v", math)
	}

	enabled := true
	on := r.List(Filter{Enabled: &enabled})
	if len(on) != 2 {
		t.Fatalf("expected 2 enabled tools, got %d", len(on))
	}

	// List returns copies; mutating them must not touch the registry.
	all[0].Description = "mutated"
	def2, err := r.Resolve(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if def2.Description == "mutated" {
		t.Fatal("List leaked a mutable reference to the registry")
	}
}

func TestSchemasForModel(t *testing.T) {
	r, local := testRouter(t, "calculate")
	admin, err := tool.NewBuilder("wipe").
		Description("admin only").
		Permission(tool.PermissionAdmin).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	disabled, err := tool.NewBuilder("hidden").Description("off").Disabled().Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, def := range []*tool.Definition{admin, disabled} {
		if err := r.Register(def); err != nil {
			t.Fatalf("register: %v", err)
		}
		local.Register(def.Name, echoFunc)
	}

	user := r.SchemasForModel(tool.PermissionUser)
	if len(user) != 1 || user[0].Name != "calculate" {
		t.Fatalf("user should see only calculate, got %+v", user)
	}

	adminView := r.SchemasForModel(tool.PermissionAdmin)
	if len(adminView) != 2 {
		t.Fatalf("admin should see 2 tools, got %d", len(adminView))
	}
}

func TestExecutorStatus(t *testing.T) {
	r, _ := testRouter(t, "calculate")
	if got := r.ExecutorStatus(tool.SourceLocal); got != executor.Idle {
		t.Fatalf("expected Idle, got %s", got)
	}
	if got := r.ExecutorStatus(tool.SourceAgent); got != executor.Unavailable {
		t.Fatalf("expected Unavailable for unbound source, got %s", got)
	}
}

func TestConcurrentRegisterAndDispatch(t *testing.T) {
	r, local := testRouter(t, "calculate")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			name := fmt.Sprintf("tool%d", i)
			local.Register(name, echoFunc)
			if err := r.Register(echoDef(t, name)); err != nil {
				t.Errorf("register %s: %v", name, err)
				return
			}
		}
	}()
	for i := 0; i < 50; i++ {
		result := r.Dispatch(context.Background(), tool.Call{CallID: fmt.Sprintf("c%d", i), ToolName: "calculate"})
		if !result.Success {
			t.Fatalf("dispatch under concurrent registration failed: %+v", result)
		}
	}
	<-done
}
