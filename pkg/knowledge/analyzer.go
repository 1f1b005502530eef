// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package knowledge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lamwimham/neuroflow-sub001/pkg/memory"
)

// Analyzer decides when a conversation has accumulated enough new material
// to be worth an extraction pass, and runs it. The orchestrator calls
// MaybeAnalyze after every turn; Analyze forces a pass regardless of gates.
type Analyzer struct {
	extractor *Extractor
	log       memory.ConversationLog

	minTurns int
	auto     bool

	mu        sync.Mutex
	extracted map[string]int // turns already covered, per conversation
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithMinTurns sets how many uncovered turns a conversation needs before
// auto-extraction fires.
func WithMinTurns(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.minTurns = n
		}
	}
}

// WithAutoExtract toggles automatic extraction. When off, MaybeAnalyze is a
// no-op and extraction only happens through Analyze.
func WithAutoExtract(on bool) AnalyzerOption {
	return func(a *Analyzer) { a.auto = on }
}

// NewAnalyzer creates an analyzer over a conversation log.
func NewAnalyzer(extractor *Extractor, log memory.ConversationLog, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		extractor: extractor,
		log:       log,
		minTurns:  3,
		auto:      true,
		extracted: make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MaybeAnalyze runs extraction when auto-extract is on and the conversation
// has at least minTurns turns not covered by a previous pass. It returns the
// entries stored, or nil when the gate held.
func (a *Analyzer) MaybeAnalyze(ctx context.Context, agentID, conversationID string) ([]memory.Entry, error) {
	if !a.auto {
		return nil, nil
	}
	turns, err := a.log.Turns(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	covered := a.extracted[conversationID]
	if len(turns)-covered < a.minTurns {
		a.mu.Unlock()
		return nil, nil
	}
	a.mu.Unlock()

	return a.analyze(ctx, agentID, conversationID, turns)
}

// Analyze runs extraction over the whole conversation unconditionally.
func (a *Analyzer) Analyze(ctx context.Context, agentID, conversationID string) ([]memory.Entry, error) {
	turns, err := a.log.Turns(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return a.analyze(ctx, agentID, conversationID, turns)
}

func (a *Analyzer) analyze(ctx context.Context, agentID, conversationID string, turns []memory.Turn) ([]memory.Entry, error) {
	if len(turns) == 0 {
		return nil, nil
	}
	entries, err := a.extractor.ExtractFromConversation(ctx, agentID, memory.TranscriptText(turns))
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.extracted[conversationID] = len(turns)
	a.mu.Unlock()

	slog.Info("knowledge.analyzed",
		slog.String("conversation_id", conversationID),
		slog.Int("turns", len(turns)),
		slog.Int("stored", len(entries)))
	return entries, nil
}

// Forget drops the coverage marker for a conversation, e.g. after its log
// is cleared.
func (a *Analyzer) Forget(conversationID string) {
	a.mu.Lock()
	delete(a.extracted, conversationID)
	a.mu.Unlock()
}
