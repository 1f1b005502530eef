// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool keeps one shared MCP client per registered tool server.
// The server executor resolves a server name to its live connection here;
// connections are created lazily, health-checked in the background and
// reconnected on the next use after a failure.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/mcp"
)

// ServerType indicates how to connect to an MCP server.
type ServerType int

const (
	// ServerTypeStdio connects via stdio (subprocess).
	ServerTypeStdio ServerType = iota
	// ServerTypeHTTP connects via Streamable HTTP.
	ServerTypeHTTP
)

// ServerConfig holds the connection settings for one MCP server.
type ServerConfig struct {
	Name string
	Type ServerType

	// For stdio servers
	Command string
	Args    []string
	Env     map[string]string

	// For HTTP servers
	URL string

	// ClientOptions are applied to the client created for this server.
	ClientOptions []mcp.ClientOption
}

type entry struct {
	config ServerConfig

	mu     sync.Mutex
	client *mcp.Client
}

// Pool maps server names to shared MCP connections.
type Pool struct {
	mu      sync.RWMutex
	servers map[string]*entry
	closed  atomic.Bool

	healthCheckInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connections        atomic.Int64
	connectionErrors   atomic.Int64
	healthChecksPassed atomic.Int64
	healthChecksFailed atomic.Int64
}

// Option configures the pool.
type Option func(*Pool)

// WithHealthCheckInterval sets how often connections are probed.
func WithHealthCheckInterval(interval time.Duration) Option {
	return func(p *Pool) {
		if interval > 0 {
			p.healthCheckInterval = interval
		}
	}
}

// New creates a connection pool.
func New(opts ...Option) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		servers:             make(map[string]*entry),
		healthCheckInterval: 30 * time.Second,
		ctx:                 ctx,
		cancel:              cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(1)
	go p.healthChecker()

	return p
}

// RegisterStdio registers an MCP server reached over stdio.
func (p *Pool) RegisterStdio(name, command string, args []string, opts ...mcp.ClientOption) error {
	return p.Register(ServerConfig{
		Name: name, Type: ServerTypeStdio,
		Command: command, Args: args, ClientOptions: opts,
	})
}

// RegisterHTTP registers an MCP server reached over Streamable HTTP.
func (p *Pool) RegisterHTTP(name, url string, opts ...mcp.ClientOption) error {
	return p.Register(ServerConfig{
		Name: name, Type: ServerTypeHTTP, URL: url, ClientOptions: opts,
	})
}

// Register registers a server with full configuration.
func (p *Pool) Register(config ServerConfig) error {
	if config.Name == "" {
		return errors.Newf(errors.CodeInvalidArguments, "mcp server name is required")
	}
	if config.Type == ServerTypeStdio && config.Command == "" {
		return errors.Newf(errors.CodeInvalidArguments, "mcp server %q: command is required", config.Name)
	}
	if config.Type == ServerTypeHTTP && config.URL == "" {
		return errors.Newf(errors.CodeInvalidArguments, "mcp server %q: url is required", config.Name)
	}
	if p.closed.Load() {
		return errors.Newf(errors.CodeExternalServiceError, "mcp pool is closed")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.servers[config.Name] = &entry{config: config}
	return nil
}

// Unregister removes a server and closes its connection.
func (p *Pool) Unregister(name string) {
	p.mu.Lock()
	e, ok := p.servers[name]
	delete(p.servers, name)
	p.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	if e.client != nil {
		_ = e.client.Close()
		e.client = nil
	}
	e.mu.Unlock()
}

// Get returns the shared client for a server, connecting on first use.
func (p *Pool) Get(ctx context.Context, serverName string) (*mcp.Client, error) {
	if p.closed.Load() {
		return nil, errors.Newf(errors.CodeExternalServiceError, "mcp pool is closed")
	}

	p.mu.RLock()
	e, ok := p.servers[serverName]
	p.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.CodeToolNotFound, "mcp server %q not registered", serverName)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return e.client, nil
	}

	client, err := connect(e.config)
	if err != nil {
		p.connectionErrors.Add(1)
		return nil, errors.New(errors.CodeExternalServiceError,
			"connect to mcp server "+serverName, err)
	}
	e.client = client
	p.connections.Add(1)
	return client, nil
}

// ListServers returns the registered server names.
func (p *Pool) ListServers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.servers))
	for name := range p.servers {
		names = append(names, name)
	}
	return names
}

// ServerInfo returns the configuration of a registered server.
func (p *Pool) ServerInfo(name string) (ServerConfig, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.servers[name]
	if !ok {
		return ServerConfig{}, false
	}
	return e.config, true
}

// Stats is a point-in-time view of pool health.
type Stats struct {
	RegisteredServers  int
	Connections        int64
	ConnectionErrors   int64
	HealthChecksPassed int64
	HealthChecksFailed int64
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	serverCount := len(p.servers)
	p.mu.RUnlock()
	return Stats{
		RegisteredServers:  serverCount,
		Connections:        p.connections.Load(),
		ConnectionErrors:   p.connectionErrors.Load(),
		HealthChecksPassed: p.healthChecksPassed.Load(),
		HealthChecksFailed: p.healthChecksFailed.Load(),
	}
}

// Close shuts down the pool and all connections.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.servers {
		e.mu.Lock()
		if e.client != nil {
			_ = e.client.Close()
			e.client = nil
		}
		e.mu.Unlock()
	}
	p.servers = map[string]*entry{}
	return nil
}

func connect(config ServerConfig) (*mcp.Client, error) {
	switch config.Type {
	case ServerTypeStdio:
		return mcp.NewClientWithStdio(config.Command, config.Args, config.Env, config.ClientOptions...)
	case ServerTypeHTTP:
		return mcp.NewClientWithStreamableHTTP(config.URL, config.ClientOptions...)
	default:
		return nil, errors.Newf(errors.CodeInvalidArguments, "unknown server type: %d", config.Type)
	}
}

func (p *Pool) healthChecker() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.runHealthChecks()
		}
	}
}

// runHealthChecks probes each live connection with a tool listing. A failed
// connection is dropped so the next Get reconnects.
func (p *Pool) runHealthChecks() {
	p.mu.RLock()
	entries := make([]*entry, 0, len(p.servers))
	for _, e := range p.servers {
		entries = append(entries, e)
	}
	p.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		client := e.client
		e.mu.Unlock()
		if client == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
		_, err := client.ListTools(ctx)
		cancel()

		if err != nil {
			p.healthChecksFailed.Add(1)
			e.mu.Lock()
			if e.client == client {
				_ = client.Close()
				e.client = nil
			}
			e.mu.Unlock()
		} else {
			p.healthChecksPassed.Add(1)
		}
	}
}
