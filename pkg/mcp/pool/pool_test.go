// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
)

func TestRegisterValidation(t *testing.T) {
	p := New()
	defer p.Close()

	if err := p.Register(ServerConfig{}); err == nil {
		t.Error("expected empty name rejected")
	}
	if err := p.RegisterStdio("s", "", nil); err == nil {
		t.Error("expected empty command rejected")
	}
	if err := p.RegisterHTTP("h", ""); err == nil {
		t.Error("expected empty url rejected")
	}
	if err := p.RegisterStdio("echo-server", "echo", []string{"hello"}); err != nil {
		t.Fatalf("RegisterStdio failed: %v", err)
	}

	servers := p.ListServers()
	if len(servers) != 1 || servers[0] != "echo-server" {
		t.Fatalf("unexpected servers: %v", servers)
	}
	config, ok := p.ServerInfo("echo-server")
	if !ok || config.Type != ServerTypeStdio || config.Command != "echo" {
		t.Fatalf("unexpected config: %+v", config)
	}
}

func TestGetUnknownServer(t *testing.T) {
	p := New()
	defer p.Close()

	_, err := p.Get(context.Background(), "missing")
	if errors.CodeOf(err) != errors.CodeToolNotFound {
		t.Fatalf("expected ToolNotFound, got %v", err)
	}
}

func TestGetSharesConnection(t *testing.T) {
	server := mcpserver.NewMCPServer("test", "1.0.0")
	server.AddTool(mcpgo.NewTool("noop"), func(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		return &mcpgo.CallToolResult{}, nil
	})
	httpServer := mcpserver.NewTestStreamableHTTPServer(server)
	defer httpServer.Close()

	p := New(WithHealthCheckInterval(time.Minute))
	defer p.Close()
	if err := p.RegisterHTTP("test", httpServer.URL); err != nil {
		t.Fatalf("RegisterHTTP failed: %v", err)
	}

	first, err := p.Get(context.Background(), "test")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	second, err := p.Get(context.Background(), "test")
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if first != second {
		t.Fatal("expected the connection to be shared")
	}
	if p.Stats().Connections != 1 {
		t.Fatalf("expected 1 connection, got %d", p.Stats().Connections)
	}
}

func TestUnregisterDropsConnection(t *testing.T) {
	p := New()
	defer p.Close()

	if err := p.RegisterStdio("gone", "echo", nil); err != nil {
		t.Fatalf("RegisterStdio failed: %v", err)
	}
	p.Unregister("gone")
	if len(p.ListServers()) != 0 {
		t.Fatal("expected server removed")
	}
	// Unregistering twice is harmless.
	p.Unregister("gone")
}

func TestClosedPool(t *testing.T) {
	p := New()
	if err := p.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close must be a no-op: %v", err)
	}
	if err := p.RegisterHTTP("h", "http://localhost:1"); err == nil {
		t.Error("expected register on closed pool to fail")
	}
	if _, err := p.Get(context.Background(), "h"); err == nil {
		t.Error("expected get on closed pool to fail")
	}
}
