// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

func newTestServer(t *testing.T) *Client {
	t.Helper()
	server := mcpserver.NewMCPServer("test-http", "1.0.0")
	server.AddTool(mcpgo.NewTool("ping"), func(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		return &mcpgo.CallToolResult{
			Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "ok"}},
		}, nil
	})

	httpServer := mcpserver.NewTestStreamableHTTPServer(server)
	t.Cleanup(httpServer.Close)

	client, err := NewClientWithStreamableHTTPProtocol(httpServer.URL, mcpgo.LATEST_PROTOCOL_VERSION)
	if err != nil {
		t.Fatalf("NewClientWithStreamableHTTPProtocol error: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClient_StreamableHTTP_ListTools(t *testing.T) {
	client := newTestServer(t)

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools error: %v", err)
	}
	if len(tools) == 0 || tools[0].Name != "ping" {
		t.Fatalf("Expected tool 'ping', got %+v", tools)
	}

	// Second listing is served from the cache.
	cached, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("cached ListTools error: %v", err)
	}
	if len(cached) != len(tools) {
		t.Fatalf("expected cached listing to match, got %d tools", len(cached))
	}
}

func TestClient_StreamableHTTP_CallTool(t *testing.T) {
	client := newTestServer(t)

	result, err := client.CallTool(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("CallTool error: %v", err)
	}
	out, err := Output(result)
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if out != "ok" {
		t.Fatalf("Expected 'ok', got %v", out)
	}
}
