// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

// Package router holds the tool registry and turns abstract calls into
// concrete, time-bounded executions. Registration is a fast in-memory
// operation; dispatch suspends only at the executor boundary.
package router

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/executor"
	"github.com/lamwimham/neuroflow-sub001/pkg/telemetry"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

// Router owns the set of tool definitions and the executor bindings. All
// dispatches go through it; nothing else touches an executor directly.
type Router struct {
	mu        sync.RWMutex
	byID      map[string]*tool.Definition
	byName    map[string]*tool.Definition
	executors map[tool.Source]executor.Executor

	initialized atomic.Bool

	defaultTimeout time.Duration
	strictArgs     bool
	allowOverwrite bool
	semanticFloor  float32
	semantic       *semanticResolver

	metrics *telemetry.RouterMetrics
	tracer  trace.Tracer
}

// Option configures a Router.
type Option func(*Router)

// WithDefaultTimeout sets the dispatch deadline used when a call carries none.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(r *Router) {
		if timeout > 0 {
			r.defaultTimeout = timeout
		}
	}
}

// WithStrictArguments rejects unknown argument fields.
func WithStrictArguments(strict bool) Option {
	return func(r *Router) { r.strictArgs = strict }
}

// WithOverwritePolicy controls re-registration under an existing id. The
// default allows it (last writer wins); forbidding it fails DuplicateId.
func WithOverwritePolicy(allow bool) Option {
	return func(r *Router) { r.allowOverwrite = allow }
}

// WithSemanticResolver enables embedding-similarity fallback resolution
// above the given confidence floor.
func WithSemanticResolver(embedder Embedder, floor float32) Option {
	return func(r *Router) {
		r.semantic = newSemanticResolver(embedder)
		if floor > 0 {
			r.semanticFloor = floor
		}
	}
}

// WithMetrics wires dispatch metrics.
func WithMetrics(m *telemetry.RouterMetrics) Option {
	return func(r *Router) { r.metrics = m }
}

// New creates a router. It accepts no dispatches until Initialize.
func New(opts ...Option) *Router {
	r := &Router{
		byID:           make(map[string]*tool.Definition),
		byName:         make(map[string]*tool.Definition),
		executors:      make(map[tool.Source]executor.Executor),
		defaultTimeout: tool.DefaultTimeout,
		strictArgs:     true,
		allowOverwrite: true,
		semanticFloor:  0.75,
		tracer:         otel.Tracer("neuroflow/router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize opens the router for dispatch. Calls made before it fail fast
// with NotInitialized.
func (r *Router) Initialize(ctx context.Context) error {
	if r.semantic != nil {
		if err := r.semantic.warm(ctx, r.snapshot()); err != nil {
			return err
		}
	}
	r.initialized.Store(true)
	slog.Info("router.initialized", slog.Int("tools", len(r.snapshot())))
	return nil
}

// Shutdown stops accepting dispatches. In-flight calls run to completion
// under their own deadlines.
func (r *Router) Shutdown(context.Context) error {
	r.initialized.Store(false)
	return nil
}

// Register validates and stores a definition. Overwrite by id is atomic:
// concurrent resolvers see either the old or the new definition, never a
// partial one.
func (r *Router) Register(def *tool.Definition) error {
	if def == nil {
		return errors.Newf(errors.CodeInvalidArguments, "nil tool definition")
	}
	if err := def.Validate(); err != nil {
		return errors.New(errors.CodeInvalidArguments, "invalid tool definition", err)
	}
	stored := def.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.byID[stored.ID]; exists {
		if !r.allowOverwrite {
			return errors.Newf(errors.CodeDuplicateID, "tool id %q already registered", stored.ID)
		}
		delete(r.byName, prev.Name)
	}
	if other, taken := r.byName[stored.Name]; taken && other.ID != stored.ID {
		return errors.Newf(errors.CodeDuplicateID,
			"tool name %q already registered under id %q", stored.Name, other.ID)
	}
	r.byID[stored.ID] = stored
	r.byName[stored.Name] = stored
	if r.semantic != nil {
		r.semantic.invalidate(stored.Name)
	}
	return nil
}

// Unregister removes a definition by id; unknown ids are a no-op.
func (r *Router) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if def, ok := r.byID[id]; ok {
		delete(r.byID, id)
		delete(r.byName, def.Name)
		if r.semantic != nil {
			r.semantic.invalidate(def.Name)
		}
	}
}

// BindExecutor binds one executor per source; the last bind wins.
func (r *Router) BindExecutor(exec executor.Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[exec.Source()] = exec
}

// Resolve maps a tool name to its definition. Exact match always wins; an
// unqualified name resolves through the "server:tool" suffix rule, then
// through semantic similarity when enabled.
func (r *Router) Resolve(ctx context.Context, name string) (*tool.Definition, error) {
	r.mu.RLock()
	if def, ok := r.byName[name]; ok {
		r.mu.RUnlock()
		return def, nil
	}

	var matches []*tool.Definition
	if !strings.Contains(name, ":") {
		suffix := ":" + name
		for defName, def := range r.byName {
			if strings.HasSuffix(defName, suffix) {
				matches = append(matches, def)
			}
		}
	}
	r.mu.RUnlock()

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		sort.Strings(names)
		return nil, errors.Newf(errors.CodeAmbiguousTool,
			"name %q matches multiple tools: %s", name, strings.Join(names, ", "))
	}

	if r.semantic != nil {
		best, score, err := r.semantic.resolve(ctx, name, r.snapshot())
		if err == nil && best != nil && score >= r.semanticFloor {
			slog.Debug("router.semantic_resolve",
				slog.String("query", name),
				slog.String("tool", best.Name),
				slog.Float64("score", float64(score)))
			return best, nil
		}
	}
	return nil, errors.Newf(errors.CodeToolNotFound, "no tool named %q", name)
}

// Dispatch resolves, validates, permission-checks and executes one call
// under its deadline. Every failure mode comes back as an error result;
// dispatch never raises.
func (r *Router) Dispatch(ctx context.Context, call tool.Call) tool.Result {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "router.dispatch",
		trace.WithAttributes(
			attribute.String("tool", call.ToolName),
			attribute.String("call_id", call.CallID),
		))
	defer span.End()

	result := r.dispatch(ctx, call)

	elapsed := time.Since(start)
	source := ""
	if def, err := r.Resolve(ctx, call.ToolName); err == nil {
		source = string(def.Source)
	}
	r.metrics.RecordDispatch(ctx, call.ToolName, source, result.ErrorCode, float64(elapsed.Milliseconds()))
	if !result.Success {
		span.SetAttributes(attribute.String("error_code", string(result.ErrorCode)))
		slog.Warn("router.dispatch_failed",
			slog.String("tool", call.ToolName),
			slog.String("call_id", call.CallID),
			slog.String("code", string(result.ErrorCode)))
	}
	return result
}

func (r *Router) dispatch(ctx context.Context, call tool.Call) tool.Result {
	if !r.initialized.Load() {
		return tool.Failure(call.CallID, errors.Newf(errors.CodeNotInitialized,
			"router not initialized"))
	}

	def, err := r.Resolve(ctx, call.ToolName)
	if err != nil {
		return tool.Failure(call.CallID, err)
	}
	if !def.Enabled {
		return tool.Failure(call.CallID, errors.Newf(errors.CodeToolNotFound,
			"tool %q is disabled", def.Name))
	}

	args, err := def.ValidateArguments(call.Arguments, r.strictArgs)
	if err != nil {
		return tool.Failure(call.CallID, err)
	}
	call.Arguments = args

	if call.Caller < def.Permission {
		return tool.Failure(call.CallID, errors.Newf(errors.CodePermissionDenied,
			"tool %q requires %s permission", def.Name, def.Permission))
	}

	r.mu.RLock()
	exec, bound := r.executors[def.Source]
	r.mu.RUnlock()
	if !bound {
		return tool.Failure(call.CallID, errors.Newf(errors.CodeInternal,
			"no executor bound for source %q", def.Source))
	}

	timeout := call.EffectiveTimeout(r.defaultTimeout)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan tool.Result, 1)
	go func() {
		done <- exec.Execute(execCtx, def, call)
	}()

	select {
	case result := <-done:
		return result
	case <-execCtx.Done():
		// The executor was signalled through execCtx; the call surfaces as a
		// timeout even if the executor later returns.
		return tool.FailureWithElapsed(call.CallID,
			errors.New(errors.CodeTimeout, "tool call deadline exceeded", execCtx.Err()),
			time.Since(start))
	}
}

// Filter narrows List output. Zero values match everything.
type Filter struct {
	Category string
	Source   tool.Source
	Enabled  *bool
}

// List returns definitions matching the filter, name-ordered.
func (r *Router) List(filter Filter) []*tool.Definition {
	out := make([]*tool.Definition, 0)
	for _, def := range r.snapshot() {
		if filter.Category != "" && def.Category != filter.Category {
			continue
		}
		if filter.Source != "" && def.Source != filter.Source {
			continue
		}
		if filter.Enabled != nil && def.Enabled != *filter.Enabled {
			continue
		}
		out = append(out, def.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SchemasForModel serializes the enabled tools the caller may invoke. This
// is the single source of truth the model sees: a tool absent here cannot
// be called by the model even if registered.
func (r *Router) SchemasForModel(caller tool.PermissionLevel) []tool.FunctionSchema {
	schemas := make([]tool.FunctionSchema, 0)
	for _, def := range r.snapshot() {
		if !def.Enabled || caller < def.Permission {
			continue
		}
		schemas = append(schemas, def.Schema())
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// ExecutorStatus reports the status of the executor bound to a source.
func (r *Router) ExecutorStatus(source tool.Source) executor.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if exec, ok := r.executors[source]; ok {
		return exec.Status()
	}
	return executor.Unavailable
}

func (r *Router) snapshot() []*tool.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*tool.Definition, 0, len(r.byID))
	for _, def := range r.byID {
		out = append(out, def)
	}
	return out
}
