// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads runtime configuration from an optional YAML file with
// environment overrides. Configuration is read once at process start and is
// read-only afterward.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Log          LogConfig          `koanf:"log"`
	Router       RouterConfig       `koanf:"router"`
	Sandbox      SandboxConfig      `koanf:"sandbox"`
	Skills       SkillsConfig       `koanf:"skills"`
	MCP          MCPConfig          `koanf:"mcp"`
	Agent        AgentConfig        `koanf:"agent"`
	LLM          LLMConfig          `koanf:"llm"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Memory       MemoryConfig       `koanf:"memory"`
	Extractor    ExtractorConfig    `koanf:"extractor"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type RouterConfig struct {
	// DefaultTimeoutMS bounds dispatches whose call carries no timeout.
	DefaultTimeoutMS int `koanf:"default_timeout_ms"`
	// StrictArguments rejects unknown extra argument fields.
	StrictArguments bool `koanf:"strict_arguments"`
	// AllowOverwrite permits re-registration under an existing tool id.
	AllowOverwrite bool `koanf:"allow_overwrite"`
	// SemanticFloor is the minimum similarity for semantic name resolution.
	SemanticFloor float64 `koanf:"semantic_floor"`
	// DefaultPermission is the caller level assumed when a call carries none.
	DefaultPermission string `koanf:"default_permission"` // public, user, admin
}

type SandboxConfig struct {
	MinInstances   int     `koanf:"min_instances"`
	MaxInstances   int     `koanf:"max_instances"`
	CPUShare       float64 `koanf:"cpu_share"`
	MemoryBytes    int64   `koanf:"memory_bytes"`
	TimeoutMS      int     `koanf:"timeout_ms"`
	MaxInvocations int     `koanf:"max_invocations"`
	GrowThreshold  float64 `koanf:"grow_threshold"`
	ShrinkThreshold float64 `koanf:"shrink_threshold"`
	ScaleIntervalMS int     `koanf:"scale_interval_ms"`
	AllowedHosts   []string `koanf:"allowed_hosts"`
}

// SkillsConfig points at the directory of SKILL.md definitions. An empty
// dir disables skill loading.
type SkillsConfig struct {
	Dir string `koanf:"dir"`
}

// MCPServerConfig describes one MCP server connection.
type MCPServerConfig struct {
	Transport string   `koanf:"transport"` // stdio, http
	Command   string   `koanf:"command"`
	Args      []string `koanf:"args"`
	URL       string   `koanf:"url"`
}

type MCPConfig struct {
	Servers map[string]MCPServerConfig `koanf:"servers"`
}

// AgentConfig holds the default endpoint for agent-assistance tools.
type AgentConfig struct {
	Endpoint   string `koanf:"endpoint"`
	MaxRetries int    `koanf:"max_retries"`
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // ollama, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
}

type OrchestratorConfig struct {
	MaxRounds    int    `koanf:"max_rounds"`
	SystemPrompt string `koanf:"system_prompt"`
}

type MemoryConfig struct {
	Backend    string `koanf:"backend"` // inmemory, sqlite
	SQLitePath string `koanf:"sqlite_path"`
	MaxEntries int    `koanf:"max_entries"`
	SweepIntervalMS int `koanf:"sweep_interval_ms"`

	VectorEnabled   bool   `koanf:"vector_enabled"`
	QdrantAddr      string `koanf:"qdrant_addr"`
	Collection      string `koanf:"collection"`
	EmbedderBaseURL string `koanf:"embedder_base_url"`
	EmbedderModel   string `koanf:"embedder_model"`
}

type ExtractorConfig struct {
	ConfidenceFloor float64 `koanf:"confidence_floor"`
	MinTurns        int     `koanf:"min_turns"`
	AutoExtract     bool    `koanf:"auto_extract"`
}

// Global k instance
var k = koanf.New(".")

func Load(path string) (*Config, error) {
	// Defaults
	k.Set("server.host", "127.0.0.1")
	k.Set("server.port", 8750)
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("router.default_timeout_ms", 30000)
	k.Set("router.strict_arguments", true)
	k.Set("router.allow_overwrite", true)
	k.Set("router.semantic_floor", 0.75)
	k.Set("router.default_permission", "user")

	k.Set("sandbox.min_instances", 1)
	k.Set("sandbox.max_instances", 8)
	k.Set("sandbox.cpu_share", 0.5)
	k.Set("sandbox.memory_bytes", 256*1024*1024)
	k.Set("sandbox.timeout_ms", 30000)
	k.Set("sandbox.max_invocations", 100)
	k.Set("sandbox.grow_threshold", 0.8)
	k.Set("sandbox.shrink_threshold", 0.3)
	k.Set("sandbox.scale_interval_ms", 1000)
	k.Set("sandbox.allowed_hosts", []string{"localhost", "127.0.0.1"})

	k.Set("skills.dir", "")
	k.Set("agent.endpoint", "")
	k.Set("agent.max_retries", 3)
	k.Set("orchestrator.max_rounds", 8)

	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5-coder:7b-instruct-q5_K_M")
	k.Set("llm.base_url", "http://localhost:11434")

	k.Set("memory.backend", "inmemory")
	k.Set("memory.sqlite_path", "memory.db")
	k.Set("memory.max_entries", 10000)
	k.Set("memory.sweep_interval_ms", 300000)
	k.Set("memory.vector_enabled", false)
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.collection", "agent_memory")
	k.Set("memory.embedder_base_url", "http://localhost:11434")
	k.Set("memory.embedder_model", "nomic-embed-text")

	k.Set("extractor.confidence_floor", 0.5)
	k.Set("extractor.min_turns", 3)
	k.Set("extractor.auto_extract", true)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (NEUROFLOW_ROUTER_SEMANTIC_FLOOR -> router.semantic_floor)
	if err := k.Load(env.Provider("NEUROFLOW_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "NEUROFLOW_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
