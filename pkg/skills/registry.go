// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"sync"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/sandbox"
)

// Program is the executable payload behind a skill. Programs run inside a
// sandbox instance and must honor its context and budget.
type Program = sandbox.Payload

// Registry maps skill names to their sandboxed programs. A skill without a
// registered program falls back to an activation program that returns the
// skill's instruction body and resource listing.
type Registry struct {
	mu       sync.RWMutex
	specs    map[string]SkillSpec
	programs map[string]Program
}

// NewRegistry creates an empty skill registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:    make(map[string]SkillSpec),
		programs: make(map[string]Program),
	}
}

// Add registers a spec; an existing spec under the same name is replaced.
func (r *Registry) Add(spec SkillSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
}

// Bind attaches a program to a named skill. The skill spec does not need to
// exist yet; programs registered ahead of their spec win on lookup.
func (r *Registry) Bind(name string, program Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[name] = program
}

// Spec returns the spec for a skill name.
func (r *Registry) Spec(name string) (SkillSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Names lists the registered skill names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	return names
}

// Program resolves the payload to run for a skill. Skills with no bound
// program and no spec fail ToolNotFound.
func (r *Registry) Program(name string) (Program, error) {
	r.mu.RLock()
	program, bound := r.programs[name]
	spec, known := r.specs[name]
	r.mu.RUnlock()

	if bound {
		return program, nil
	}
	if known {
		return activationProgram(spec), nil
	}
	return nil, errors.Newf(errors.CodeToolNotFound, "no program for skill %q", name)
}

// Activation is what an unbound skill returns when invoked: its instruction
// body plus the resources available next to it.
type Activation struct {
	Name         string   `json:"name"`
	Instructions string   `json:"instructions"`
	Resources    []string `json:"resources,omitempty"`
}

// activationProgram serves the skill's instructions, or a named resource
// when the call asks for one.
func activationProgram(spec SkillSpec) Program {
	return func(ctx context.Context, args map[string]any) (any, error) {
		if resource, ok := args["resource"].(string); ok && resource != "" {
			content, err := spec.Resource(resource)
			if err != nil {
				return nil, errors.New(errors.CodeInvalidArguments, "load skill resource", err)
			}
			if err := sandbox.Alloc(ctx, int64(len(content))); err != nil {
				return nil, err
			}
			return content, nil
		}
		return Activation{
			Name:         spec.Name,
			Instructions: spec.Body,
			Resources:    spec.Resources(),
		}, nil
	}
}

// LoadInto loads all skills under root into the registry and returns the
// loaded specs.
func LoadInto(root string, registry *Registry) ([]SkillSpec, error) {
	specs, err := LoadDir(root)
	if err != nil {
		return nil, err
	}
	for _, spec := range specs {
		registry.Add(spec)
	}
	return specs, nil
}
