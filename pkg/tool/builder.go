// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import "encoding/json"

// Builder assembles a Definition fluently. Registration stays an explicit,
// testable call rather than import-time side effects.
//
//	def, err := tool.NewBuilder("calculate").
//	    Description("Evaluate an arithmetic expression").
//	    Source(tool.SourceLocal).
//	    StringParam("expression", "expression to evaluate", true).
//	    Returns("number").
//	    Build()
type Builder struct {
	def Definition
}

// NewBuilder starts a builder for a tool name. The ID defaults to the name.
func NewBuilder(name string) *Builder {
	return &Builder{def: Definition{
		ID:      name,
		Name:    name,
		Source:  SourceLocal,
		Mode:    ModeSync,
		Enabled: true,
	}}
}

// ID overrides the definition id.
func (b *Builder) ID(id string) *Builder {
	b.def.ID = id
	return b
}

// Description sets the natural-language description the model selects on.
func (b *Builder) Description(desc string) *Builder {
	b.def.Description = desc
	return b
}

// Source sets the capability source.
func (b *Builder) Source(source Source) *Builder {
	b.def.Source = source
	return b
}

// Mode sets the execution mode.
func (b *Builder) Mode(mode ExecutionMode) *Builder {
	b.def.Mode = mode
	return b
}

// Permission sets the required caller permission.
func (b *Builder) Permission(level PermissionLevel) *Builder {
	b.def.Permission = level
	return b
}

// Category tags the tool for list filtering.
func (b *Builder) Category(category string) *Builder {
	b.def.Category = category
	return b
}

// Disabled registers the tool without exposing it to the model.
func (b *Builder) Disabled() *Builder {
	b.def.Enabled = false
	return b
}

// Param appends a fully specified parameter.
func (b *Builder) Param(p Parameter) *Builder {
	b.def.Parameters = append(b.def.Parameters, p)
	return b
}

// StringParam appends a string parameter.
func (b *Builder) StringParam(name, desc string, required bool) *Builder {
	return b.Param(Parameter{Name: name, Type: "string", Description: desc, Required: required})
}

// NumberParam appends a number parameter.
func (b *Builder) NumberParam(name, desc string, required bool) *Builder {
	return b.Param(Parameter{Name: name, Type: "number", Description: desc, Required: required})
}

// BoolParam appends a boolean parameter.
func (b *Builder) BoolParam(name, desc string, required bool) *Builder {
	return b.Param(Parameter{Name: name, Type: "boolean", Description: desc, Required: required})
}

// DefaultParam appends an optional parameter with a default value.
func (b *Builder) DefaultParam(name, paramType, desc string, def any) *Builder {
	raw, err := json.Marshal(def)
	if err != nil {
		raw = nil
	}
	return b.Param(Parameter{Name: name, Type: paramType, Description: desc, Default: raw})
}

// Returns sets the declared return type.
func (b *Builder) Returns(returnType string) *Builder {
	b.def.ReturnType = returnType
	return b
}

// Meta attaches free-form metadata.
func (b *Builder) Meta(key string, value any) *Builder {
	if b.def.Metadata == nil {
		b.def.Metadata = make(map[string]any)
	}
	b.def.Metadata[key] = value
	return b
}

// Build validates and returns the definition.
func (b *Builder) Build() (*Definition, error) {
	def := b.def.Clone()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}
