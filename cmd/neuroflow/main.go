// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

// Command neuroflow runs the tool execution runtime: tool registry and
// router, sandboxed skill execution, MCP server bridging, agent memory and
// knowledge extraction, exposed over HTTP+JSON.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lamwimham/neuroflow-sub001/pkg/config"
	"github.com/lamwimham/neuroflow-sub001/pkg/executor"
	"github.com/lamwimham/neuroflow-sub001/pkg/httpapi"
	"github.com/lamwimham/neuroflow-sub001/pkg/knowledge"
	"github.com/lamwimham/neuroflow-sub001/pkg/llm"
	"github.com/lamwimham/neuroflow-sub001/pkg/mcp"
	mcppool "github.com/lamwimham/neuroflow-sub001/pkg/mcp/pool"
	"github.com/lamwimham/neuroflow-sub001/pkg/memory"
	memollama "github.com/lamwimham/neuroflow-sub001/pkg/memory/ollama"
	memqdrant "github.com/lamwimham/neuroflow-sub001/pkg/memory/qdrant"
	"github.com/lamwimham/neuroflow-sub001/pkg/orchestrator"
	"github.com/lamwimham/neuroflow-sub001/pkg/resilience"
	"github.com/lamwimham/neuroflow-sub001/pkg/router"
	"github.com/lamwimham/neuroflow-sub001/pkg/sandbox"
	"github.com/lamwimham/neuroflow-sub001/pkg/skills"
	"github.com/lamwimham/neuroflow-sub001/pkg/telemetry"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := ""
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config":
			if i+1 >= len(args) {
				fatal(fmt.Errorf("missing value for --config"))
			}
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			configPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "version":
			fmt.Println(version)
			return
		case args[i] == "help", args[i] == "-h", args[i] == "--help":
			printUsage()
			return
		default:
			fatal(fmt.Errorf("unknown argument %q", args[i]))
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err)
	}
	telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	if err := run(ctx, cfg); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownTelemetry, err := telemetry.Init("neuroflow", version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	metrics, err := telemetry.NewRouterMetrics()
	if err != nil {
		return err
	}

	store, err := openMemoryStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	conversations := memory.NewConversationLog()

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	extractor := knowledge.NewExtractor(provider, store,
		knowledge.WithModel(cfg.LLM.Model),
		knowledge.WithReviewFloor(cfg.Extractor.ConfidenceFloor),
		knowledge.WithMetrics(metrics),
	)
	analyzer := knowledge.NewAnalyzer(extractor, conversations,
		knowledge.WithMinTurns(cfg.Extractor.MinTurns),
		knowledge.WithAutoExtract(cfg.Extractor.AutoExtract),
	)

	routerOpts := []router.Option{
		router.WithDefaultTimeout(time.Duration(cfg.Router.DefaultTimeoutMS) * time.Millisecond),
		router.WithStrictArguments(cfg.Router.StrictArguments),
		router.WithOverwritePolicy(cfg.Router.AllowOverwrite),
		router.WithMetrics(metrics),
	}
	var recall httpapi.Recaller
	if cfg.Memory.VectorEnabled {
		embedder := memollama.NewEmbedder(cfg.Memory.EmbedderBaseURL, cfg.Memory.EmbedderModel)
		routerOpts = append(routerOpts,
			router.WithSemanticResolver(embedder, float32(cfg.Router.SemanticFloor)))

		vectors, err := memqdrant.New(cfg.Memory.QdrantAddr)
		if err != nil {
			return err
		}
		index := memory.NewSemanticIndex(vectors, embedder, cfg.Memory.Collection)
		if err := index.Initialize(ctx); err != nil {
			slog.Warn("memory.semantic_unavailable", slog.String("error", err.Error()))
		} else {
			indexed := memory.NewIndexedStore(store, index)
			store = indexed
			recall = indexed
		}
	}
	rt := router.New(routerOpts...)

	local := executor.NewLocalExecutor()
	if err := registerBuiltins(rt, local); err != nil {
		return err
	}
	rt.BindExecutor(local)

	sandboxPool, skillRegistry, err := wireSkills(cfg, rt, metrics)
	if err != nil {
		return err
	}
	defer sandboxPool.Close()
	rt.BindExecutor(executor.NewSkillExecutor(sandboxPool, skillRegistry))

	serverPool, err := wireMCPServers(ctx, cfg, rt)
	if err != nil {
		return err
	}
	defer serverPool.Close()
	rt.BindExecutor(executor.NewServerExecutor(serverPool))

	if cfg.Agent.Endpoint != "" {
		retry := resilience.DefaultRetryConfig().WithMaxAttempts(cfg.Agent.MaxRetries)
		rt.BindExecutor(executor.NewAgentExecutor(cfg.Agent.Endpoint, executor.WithRetry(retry)))
	}

	if err := rt.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		if err := rt.Shutdown(context.Background()); err != nil {
			slog.Warn("router shutdown failed", slog.String("error", err.Error()))
		}
	}()

	orch := orchestrator.New(rt, provider, conversations,
		orchestrator.WithModel(cfg.LLM.Model),
		orchestrator.WithMaxRounds(cfg.Orchestrator.MaxRounds),
		orchestrator.WithSystemPrompt(cfg.Orchestrator.SystemPrompt),
		orchestrator.WithAnalyzer(analyzer),
	)

	apiOpts := []httpapi.Option{
		httpapi.WithOrchestrator(orch),
		httpapi.WithCaller(parsePermission(cfg.Router.DefaultPermission)),
	}
	if recall != nil {
		apiOpts = append(apiOpts, httpapi.WithRecall(recall))
	}
	api := httpapi.New(rt, store, conversations, extractor, apiOpts...)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("neuroflow.listening", slog.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("neuroflow.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openMemoryStore(cfg *config.Config) (memory.Store, error) {
	switch cfg.Memory.Backend {
	case "sqlite":
		return memory.OpenSQLite(cfg.Memory.SQLitePath)
	case "", "inmemory":
		store := memory.NewInMemoryStore(memory.WithMaxEntries(cfg.Memory.MaxEntries))
		store.StartSweeper(time.Duration(cfg.Memory.SweepIntervalMS) * time.Millisecond)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}
}

func newProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "", "ollama":
		return llm.NewOllama(cfg.LLM.BaseURL), nil
	case "mock":
		return &llm.MockProvider{Response: "ok"}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func wireSkills(cfg *config.Config, rt *router.Router, metrics *telemetry.RouterMetrics) (*sandbox.Pool, *skills.Registry, error) {
	pool, err := sandbox.NewPool(
		sandbox.WithLimits(sandbox.ResourceLimits{
			CPUShare:    cfg.Sandbox.CPUShare,
			MemoryBytes: cfg.Sandbox.MemoryBytes,
			WallClock:   time.Duration(cfg.Sandbox.TimeoutMS) * time.Millisecond,
			Network:     sandbox.NetworkPolicy{AllowedHosts: cfg.Sandbox.AllowedHosts},
		}),
		sandbox.WithMinInstances(cfg.Sandbox.MinInstances),
		sandbox.WithMaxInstances(cfg.Sandbox.MaxInstances),
		sandbox.WithRetireAfter(cfg.Sandbox.MaxInvocations),
		sandbox.WithScaleThresholds(cfg.Sandbox.GrowThreshold, cfg.Sandbox.ShrinkThreshold),
		sandbox.WithScaleInterval(time.Duration(cfg.Sandbox.ScaleIntervalMS)*time.Millisecond),
		sandbox.WithMetrics(metrics),
	)
	if err != nil {
		return nil, nil, err
	}

	registry := skills.NewRegistry()
	if cfg.Skills.Dir != "" {
		specs, err := skills.LoadInto(cfg.Skills.Dir, registry)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		for _, spec := range specs {
			def, err := spec.Definition()
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
			if err := rt.Register(def); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		slog.Info("skills.loaded", slog.Int("count", len(specs)), slog.String("dir", cfg.Skills.Dir))
	}
	return pool, registry, nil
}

// wireMCPServers registers configured servers and their tools. A server
// that cannot be reached at startup is still registered; its tools become
// available once it reconnects, they are just not advertised to the model.
func wireMCPServers(ctx context.Context, cfg *config.Config, rt *router.Router) (*mcppool.Pool, error) {
	pool := mcppool.New()
	for name, server := range cfg.MCP.Servers {
		var err error
		switch strings.ToLower(server.Transport) {
		case "", "stdio":
			err = pool.RegisterStdio(name, server.Command, server.Args)
		case "http":
			err = pool.RegisterHTTP(name, server.URL)
		default:
			err = fmt.Errorf("mcp server %q has unsupported transport %q", name, server.Transport)
		}
		if err != nil {
			pool.Close()
			return nil, err
		}

		client, err := pool.Get(ctx, name)
		if err != nil {
			slog.Warn("mcp.connect_failed", slog.String("server", name), slog.String("error", err.Error()))
			continue
		}
		tools, err := client.ListTools(ctx)
		if err != nil {
			slog.Warn("mcp.list_tools_failed", slog.String("server", name), slog.String("error", err.Error()))
			continue
		}
		defs, err := mcp.Definitions(name, tools)
		if err != nil {
			pool.Close()
			return nil, err
		}
		for _, def := range defs {
			if err := rt.Register(def); err != nil {
				pool.Close()
				return nil, err
			}
		}
		slog.Info("mcp.tools_registered", slog.String("server", name), slog.Int("count", len(defs)))
	}
	return pool, nil
}

func parsePermission(level string) tool.PermissionLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "admin":
		return tool.PermissionAdmin
	case "public":
		return tool.PermissionPublic
	default:
		return tool.PermissionUser
	}
}

func printUsage() {
	fmt.Println(`neuroflow runtime

Usage:
  neuroflow [--config <path>]
  neuroflow version

The server reads YAML configuration from --config, with NEUROFLOW_*
environment overrides (e.g. NEUROFLOW_SERVER_PORT=9000).`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
