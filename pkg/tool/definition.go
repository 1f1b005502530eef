// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

// Package tool defines the unified call contract shared by every capability
// source: local functions, MCP tool servers, sandboxed skills and remote
// agents all describe themselves as a ToolDefinition and are invoked with a
// ToolCall.
package tool

import (
	"encoding/json"
	"fmt"
)

// Source identifies where a tool's logic actually runs.
type Source string

const (
	// SourceLocal is an in-process function, trusted and fast.
	SourceLocal Source = "local"
	// SourceServer is an external MCP-style tool server.
	SourceServer Source = "server"
	// SourceSkill is sandboxed skill code, the only less-trusted source.
	SourceSkill Source = "skill"
	// SourceAgent is another agent reached over its assistance endpoint.
	SourceAgent Source = "agent"
)

// Valid reports whether s is one of the four known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceLocal, SourceServer, SourceSkill, SourceAgent:
		return true
	}
	return false
}

// ExecutionMode describes how results are delivered.
type ExecutionMode string

const (
	ModeSync      ExecutionMode = "sync"
	ModeAsync     ExecutionMode = "async"
	ModeStreaming ExecutionMode = "streaming"
)

// PermissionLevel gates who may invoke a tool. Higher levels include lower ones.
type PermissionLevel int

const (
	PermissionPublic PermissionLevel = iota
	PermissionUser
	PermissionAdmin
)

// String returns the level name for logs and schemas.
func (p PermissionLevel) String() string {
	switch p {
	case PermissionPublic:
		return "public"
	case PermissionUser:
		return "user"
	case PermissionAdmin:
		return "admin"
	default:
		return fmt.Sprintf("level(%d)", int(p))
	}
}

// Parameter is one typed parameter of a tool.
type Parameter struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"` // string, number, boolean, array, object
	Description string          `json:"description,omitempty"`
	Required    bool            `json:"required"`
	Default     json.RawMessage `json:"default,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
}

// Definition describes one callable capability. The ID is immutable once
// registered; re-registering the same ID atomically replaces the definition.
type Definition struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Source      Source          `json:"source"`
	Parameters  []Parameter     `json:"parameters"`
	ReturnType  string          `json:"returnType,omitempty"`
	Mode        ExecutionMode   `json:"executionMode,omitempty"`
	Permission  PermissionLevel `json:"permission"`
	Category    string          `json:"category,omitempty"`
	Enabled     bool            `json:"enabled"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

var paramTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// Validate checks the definition's schema well-formedness before it enters
// the registry.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("tool definition: id is required")
	}
	if d.Name == "" {
		return fmt.Errorf("tool definition: name is required")
	}
	if !d.Source.Valid() {
		return fmt.Errorf("tool definition %q: unknown source %q", d.Name, d.Source)
	}
	seen := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		if p.Name == "" {
			return fmt.Errorf("tool definition %q: parameter with empty name", d.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("tool definition %q: duplicate parameter %q", d.Name, p.Name)
		}
		seen[p.Name] = true
		if !paramTypes[p.Type] {
			return fmt.Errorf("tool definition %q: parameter %q has unknown type %q", d.Name, p.Name, p.Type)
		}
		if p.Required && len(p.Default) > 0 {
			return fmt.Errorf("tool definition %q: parameter %q is required and has a default", d.Name, p.Name)
		}
	}
	return nil
}

// Clone returns a deep copy so registry snapshots never alias caller state.
func (d *Definition) Clone() *Definition {
	out := *d
	out.Parameters = append([]Parameter(nil), d.Parameters...)
	if d.Metadata != nil {
		out.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
