// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/mcp"
	"github.com/lamwimham/neuroflow-sub001/pkg/mcp/pool"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

func serverSetup(t *testing.T) (*ServerExecutor, *tool.Definition) {
	t.Helper()
	server := mcpserver.NewMCPServer("calc", "1.0.0")
	echoTool := mcpgo.NewTool("echo")
	server.AddTool(echoTool, func(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		msg, _ := args["msg"].(string)
		return &mcpgo.CallToolResult{
			Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: msg}},
		}, nil
	})
	httpServer := mcpserver.NewTestStreamableHTTPServer(server)
	t.Cleanup(httpServer.Close)

	p := pool.New()
	t.Cleanup(func() { p.Close() })
	if err := p.RegisterHTTP("calc", httpServer.URL); err != nil {
		t.Fatalf("register server: %v", err)
	}

	def, err := mcp.Definition("calc", mcpgo.Tool{Name: "echo", Description: "echo text"})
	if err != nil {
		t.Fatalf("definition: %v", err)
	}
	return NewServerExecutor(p), def
}

func TestServerExecute(t *testing.T) {
	e, def := serverSetup(t)
	result := e.Execute(context.Background(), def, tool.Call{
		CallID:    "c1",
		ToolName:  "calc:echo",
		Arguments: map[string]any{"msg": "ping"},
	})
	if !result.Success || result.Value != "ping" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.CallID != "c1" {
		t.Fatalf("call id not echoed: %q", result.CallID)
	}
}

func TestServerUnknownServer(t *testing.T) {
	p := pool.New()
	defer p.Close()
	e := NewServerExecutor(p)

	def, err := tool.NewBuilder("ghost:echo").
		Description("tool on an unregistered server").
		Source(tool.SourceServer).
		Build()
	if err != nil {
		t.Fatalf("build definition: %v", err)
	}
	result := e.Execute(context.Background(), def, tool.Call{CallID: "c1", ToolName: "ghost:echo"})
	if result.Success || result.ErrorCode != errors.CodeToolNotFound {
		t.Fatalf("expected ToolNotFound, got %+v", result)
	}
}

func TestServerAndToolSplit(t *testing.T) {
	def, err := tool.NewBuilder("files:read").
		Description("read").
		Source(tool.SourceServer).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	server, name := serverAndTool(def)
	if server != "files" || name != "read" {
		t.Fatalf("expected split from qualified name, got %q %q", server, name)
	}
}

func TestServerSource(t *testing.T) {
	e := NewServerExecutor(pool.New())
	if e.Source() != tool.SourceServer {
		t.Fatalf("expected server source, got %s", e.Source())
	}
}
