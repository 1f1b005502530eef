// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package knowledge

import (
	"context"
	"testing"

	"github.com/lamwimham/neuroflow-sub001/pkg/llm"
	"github.com/lamwimham/neuroflow-sub001/pkg/memory"
)

func analyzerSetup(t *testing.T, provider *llm.ScriptedMockProvider, opts ...AnalyzerOption) (*Analyzer, *memory.InMemoryConversationLog) {
	t.Helper()
	store := memory.NewInMemoryStore()
	t.Cleanup(func() { store.Close() })
	log := memory.NewConversationLog()
	return NewAnalyzer(NewExtractor(provider, store), log, opts...), log
}

func appendTurns(t *testing.T, log *memory.InMemoryConversationLog, conversationID string, contents ...string) {
	t.Helper()
	for _, content := range contents {
		if err := log.Append(context.Background(), conversationID, memory.Turn{Role: "user", Content: content}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestMaybeAnalyzeGate(t *testing.T) {
	provider := llm.NewScriptedMockProvider(extractionJSON)
	a, log := analyzerSetup(t, provider)

	appendTurns(t, log, "conv-1", "hello", "hi there")
	entries, err := a.MaybeAnalyze(context.Background(), "agent-1", "conv-1")
	if err != nil {
		t.Fatalf("maybe analyze: %v", err)
	}
	if entries != nil {
		t.Fatalf("gate should hold below min turns, got %d entries", len(entries))
	}
	if provider.CallCount != 0 {
		t.Fatalf("model must not be called below the gate, called %d times", provider.CallCount)
	}

	appendTurns(t, log, "conv-1", "我在北京工作")
	entries, err = a.MaybeAnalyze(context.Background(), "agent-1", "conv-1")
	if err != nil {
		t.Fatalf("maybe analyze: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected extraction at min turns, got %d entries", len(entries))
	}
}

func TestMaybeAnalyzeCoverageAdvances(t *testing.T) {
	provider := llm.NewScriptedMockProvider(extractionJSON, "[]")
	a, log := analyzerSetup(t, provider)

	appendTurns(t, log, "conv-1", "a", "b", "c")
	if _, err := a.MaybeAnalyze(context.Background(), "agent-1", "conv-1"); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// One new turn is below the gate again.
	appendTurns(t, log, "conv-1", "d")
	if _, err := a.MaybeAnalyze(context.Background(), "agent-1", "conv-1"); err != nil {
		t.Fatalf("gated pass: %v", err)
	}
	if provider.CallCount != 1 {
		t.Fatalf("expected coverage marker to gate re-extraction, called %d times", provider.CallCount)
	}

	appendTurns(t, log, "conv-1", "e", "f")
	if _, err := a.MaybeAnalyze(context.Background(), "agent-1", "conv-1"); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if provider.CallCount != 2 {
		t.Fatalf("expected second extraction after enough new turns, called %d times", provider.CallCount)
	}
}

func TestMaybeAnalyzeAutoOff(t *testing.T) {
	provider := llm.NewScriptedMockProvider(extractionJSON)
	a, log := analyzerSetup(t, provider, WithAutoExtract(false))

	appendTurns(t, log, "conv-1", "a", "b", "c", "d", "e")
	entries, err := a.MaybeAnalyze(context.Background(), "agent-1", "conv-1")
	if err != nil || entries != nil {
		t.Fatalf("auto-off should be a no-op, got %v %v", entries, err)
	}

	// Explicit analysis still works.
	entries, err = a.Analyze(context.Background(), "agent-1", "conv-1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected explicit extraction, got %d entries", len(entries))
	}
}

func TestAnalyzeEmptyConversation(t *testing.T) {
	provider := llm.NewScriptedMockProvider(extractionJSON)
	a, _ := analyzerSetup(t, provider)
	entries, err := a.Analyze(context.Background(), "agent-1", "ghost")
	if err != nil || entries != nil {
		t.Fatalf("empty conversation should be a no-op, got %v %v", entries, err)
	}
}

func TestForgetResetsCoverage(t *testing.T) {
	provider := llm.NewScriptedMockProvider(extractionJSON, extractionJSON)
	a, log := analyzerSetup(t, provider, WithMinTurns(2))

	appendTurns(t, log, "conv-1", "a", "b")
	if _, err := a.MaybeAnalyze(context.Background(), "agent-1", "conv-1"); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	a.Forget("conv-1")
	if _, err := a.MaybeAnalyze(context.Background(), "agent-1", "conv-1"); err != nil {
		t.Fatalf("post-forget pass: %v", err)
	}
	if provider.CallCount != 2 {
		t.Fatalf("expected forget to reopen the gate, called %d times", provider.CallCount)
	}
}
