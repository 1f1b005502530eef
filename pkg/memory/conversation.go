// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Turn is a single message in a conversation transcript.
type Turn struct {
	Role      string    `json:"role"` // user, assistant, tool
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationLog keeps ordered transcripts per conversation id. The
// knowledge extractor reads from it; the orchestrator appends to it.
type ConversationLog interface {
	Append(ctx context.Context, conversationID string, turn Turn) error
	Turns(ctx context.Context, conversationID string) ([]Turn, error)
	Clear(ctx context.Context, conversationID string) error
}

// InMemoryConversationLog is the default ConversationLog.
type InMemoryConversationLog struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

// NewConversationLog creates an empty in-memory log.
func NewConversationLog() *InMemoryConversationLog {
	return &InMemoryConversationLog{turns: make(map[string][]Turn)}
}

// Append adds a turn to the conversation.
func (l *InMemoryConversationLog) Append(_ context.Context, conversationID string, turn Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns[conversationID] = append(l.turns[conversationID], turn)
	return nil
}

// Turns returns a copy of the conversation's turns in append order.
func (l *InMemoryConversationLog) Turns(_ context.Context, conversationID string) ([]Turn, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Turn, len(l.turns[conversationID]))
	copy(out, l.turns[conversationID])
	return out, nil
}

// Clear removes the conversation.
func (l *InMemoryConversationLog) Clear(_ context.Context, conversationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.turns, conversationID)
	return nil
}

// TranscriptText renders turns as "role: content" lines, the shape the
// extraction prompt embeds.
func TranscriptText(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Content))
	}
	return strings.Join(lines, "\n")
}

var _ ConversationLog = (*InMemoryConversationLog)(nil)
