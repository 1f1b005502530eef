// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

func sampleMCPTool() mcpgo.Tool {
	return mcpgo.Tool{
		Name:        "search",
		Description: "Search the index",
		InputSchema: mcpgo.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{"type": "string", "description": "search query"},
				"limit": map[string]any{"type": "integer"},
			},
			Required: []string{"query"},
		},
	}
}

func TestDefinitionConversion(t *testing.T) {
	def, err := Definition("files", sampleMCPTool())
	if err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if def.Name != "files:search" {
		t.Errorf("expected qualified name, got %q", def.Name)
	}
	if def.Source != tool.SourceServer {
		t.Errorf("expected server source, got %s", def.Source)
	}
	if len(def.Parameters) != 2 {
		t.Fatalf("expected 2 parameters, got %d", len(def.Parameters))
	}
	// Parameters are normalized alphabetically.
	if def.Parameters[0].Name != "limit" || def.Parameters[0].Type != "integer" {
		t.Errorf("unexpected first parameter: %+v", def.Parameters[0])
	}
	if def.Parameters[1].Name != "query" || !def.Parameters[1].Required {
		t.Errorf("unexpected second parameter: %+v", def.Parameters[1])
	}
	if def.Metadata["server"] != "files" || def.Metadata["mcp_tool"] != "search" {
		t.Errorf("unexpected metadata: %v", def.Metadata)
	}
}

func TestDefinitionRequiresName(t *testing.T) {
	if _, err := Definition("files", mcpgo.Tool{}); err == nil {
		t.Fatal("expected empty tool name rejected")
	}
}

func TestDefinitionsBatch(t *testing.T) {
	defs, err := Definitions("files", []mcpgo.Tool{sampleMCPTool(), {Name: "read", Description: "Read a file"}})
	if err != nil {
		t.Fatalf("batch conversion failed: %v", err)
	}
	if len(defs) != 2 || defs[1].Name != "files:read" {
		t.Fatalf("unexpected batch output: %v", defs)
	}
}

func TestOutputText(t *testing.T) {
	out, err := Output(&mcpgo.CallToolResult{
		Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "hello"}},
	})
	if err != nil {
		t.Fatalf("output failed: %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected text output, got %v", out)
	}
}

func TestOutputStructured(t *testing.T) {
	structured := map[string]any{"n": 4}
	out, err := Output(&mcpgo.CallToolResult{StructuredContent: structured})
	if err != nil {
		t.Fatalf("output failed: %v", err)
	}
	if m, ok := out.(map[string]any); !ok || m["n"] != 4 {
		t.Fatalf("expected structured output, got %v", out)
	}
}

func TestOutputError(t *testing.T) {
	_, err := Output(&mcpgo.CallToolResult{
		IsError: true,
		Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "boom"}},
	})
	if errors.CodeOf(err) != errors.CodeExternalServiceError {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if _, err := Output(nil); errors.CodeOf(err) != errors.CodeExternalServiceError {
		t.Fatalf("expected nil result rejected, got %v", err)
	}
}
