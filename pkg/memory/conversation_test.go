// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"testing"
)

func TestConversationAppendOrder(t *testing.T) {
	log := NewConversationLog()
	ctx := context.Background()

	_ = log.Append(ctx, "c1", Turn{Role: "user", Content: "hi"})
	_ = log.Append(ctx, "c1", Turn{Role: "assistant", Content: "hello"})
	_ = log.Append(ctx, "c1", Turn{Role: "user", Content: "bye"})
	_ = log.Append(ctx, "c2", Turn{Role: "user", Content: "other"})

	turns, err := log.Turns(ctx, "c1")
	if err != nil {
		t.Fatalf("turns failed: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].Content != "hi" || turns[2].Content != "bye" {
		t.Fatalf("turns out of order: %v", turns)
	}
	if turns[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be filled")
	}
}

func TestConversationClear(t *testing.T) {
	log := NewConversationLog()
	ctx := context.Background()

	_ = log.Append(ctx, "c1", Turn{Role: "user", Content: "hi"})
	if err := log.Clear(ctx, "c1"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	turns, _ := log.Turns(ctx, "c1")
	if len(turns) != 0 {
		t.Fatalf("expected cleared conversation, got %d turns", len(turns))
	}
}

func TestTranscriptText(t *testing.T) {
	turns := []Turn{
		{Role: "user", Content: "what is 2+2"},
		{Role: "assistant", Content: "4"},
	}
	got := TranscriptText(turns)
	want := "user: what is 2+2\nassistant: 4"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if TranscriptText(nil) != "" {
		t.Fatal("expected empty transcript for no turns")
	}
}
