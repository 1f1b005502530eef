// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

// Definition converts an MCP tool into a router definition. The tool is
// registered under the qualified name "<server>:<tool>" so unqualified
// resolution can detect ambiguity across servers.
func Definition(serverName string, t mcp.Tool) (*tool.Definition, error) {
	if t.Name == "" {
		return nil, errors.Newf(errors.CodeInvalidArguments, "mcp tool name is required")
	}
	qualified := t.Name
	if serverName != "" {
		qualified = fmt.Sprintf("%s:%s", serverName, t.Name)
	}

	b := tool.NewBuilder(qualified).
		Description(t.Description).
		Source(tool.SourceServer).
		Category("mcp").
		Meta("server", serverName).
		Meta("mcp_tool", t.Name)

	for _, p := range schemaParameters(t.InputSchema) {
		b.Param(p)
	}
	return b.Build()
}

// Definitions converts all of a server's MCP tools.
func Definitions(serverName string, tools []mcp.Tool) ([]*tool.Definition, error) {
	defs := make([]*tool.Definition, 0, len(tools))
	for _, t := range tools {
		def, err := Definition(serverName, t)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// schemaParameters flattens an MCP input schema's top-level properties into
// typed parameters. Property order is normalized alphabetically since JSON
// object keys carry none.
func schemaParameters(schema mcp.ToolInputSchema) []tool.Parameter {
	if len(schema.Properties) == 0 {
		return nil
	}
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]tool.Parameter, 0, len(names))
	for _, name := range names {
		p := tool.Parameter{Name: name, Type: "string", Required: required[name]}
		if prop, ok := schema.Properties[name].(map[string]any); ok {
			if t, ok := prop["type"].(string); ok && t != "" {
				p.Type = t
			}
			if d, ok := prop["description"].(string); ok {
				p.Description = d
			}
		}
		params = append(params, p)
	}
	return params
}

// Output converts an MCP call result into the router's result payload.
// Server-side tool errors surface as ExternalServiceError.
func Output(result *mcp.CallToolResult) (any, error) {
	if result == nil {
		return nil, errors.Newf(errors.CodeExternalServiceError, "mcp tool result is nil")
	}
	if result.IsError {
		return nil, errors.Newf(errors.CodeExternalServiceError,
			"mcp tool returned error: %s", extractTextContent(result.Content))
	}
	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	if text := extractTextContent(result.Content); text != "" {
		return text, nil
	}
	return result, nil
}

func extractTextContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}
