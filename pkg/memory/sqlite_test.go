// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteRoundTrip(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	entry := NewEntry("u1", "pref", map[string]any{"lang": "go"}, []string{"user"}).
		WithImportance(0.7)
	if err := store.Store(ctx, entry); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	got, found, err := store.Retrieve(ctx, "u1", "pref")
	if err != nil || !found {
		t.Fatalf("retrieve failed: found=%v err=%v", found, err)
	}
	if got.Importance != 0.7 || got.Type != LongTerm {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	value, ok := got.Value.(map[string]any)
	if !ok || value["lang"] != "go" {
		t.Fatalf("unexpected value: %v", got.Value)
	}
	if !got.HasTag("user") {
		t.Fatalf("tags not preserved: %v", got.Tags)
	}
}

func TestSQLiteUpsert(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	_ = store.Store(ctx, NewEntry("u1", "k", "first", nil))
	_ = store.Store(ctx, NewEntry("u1", "k", "second", nil))

	got, found, _ := store.Retrieve(ctx, "u1", "k")
	if !found || got.Value != "second" {
		t.Fatalf("expected overwrite, got %+v", got)
	}
}

func TestSQLiteExpiryAndSweep(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	_ = store.Store(ctx, NewEntry("u1", "gone", "v", nil).WithTTL(time.Millisecond))
	_ = store.Store(ctx, NewEntry("u1", "kept", "v", nil))
	time.Sleep(5 * time.Millisecond)

	if _, found, _ := store.Retrieve(ctx, "u1", "gone"); found {
		t.Fatal("expected expired entry hidden from retrieve")
	}
	results, _ := store.Search(ctx, Query{AgentID: "u1"})
	if len(results) != 1 || results[0].Key != "kept" {
		t.Fatalf("expected only live entry in search, got %v", results)
	}

	n, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed row, got %d", n)
	}
}

func TestSQLiteSearchOrdering(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, spec := range []struct {
		key        string
		importance float64
		tags       []string
	}{
		{"low", 0.2, []string{"x"}},
		{"high-old", 0.9, []string{"x"}},
		{"high-new", 0.9, []string{"x"}},
		{"untagged", 0.9, nil},
	} {
		entry := NewEntry("u1", spec.key, spec.key, spec.tags).WithImportance(spec.importance)
		entry.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.Store(ctx, entry); err != nil {
			t.Fatalf("store %s: %v", spec.key, err)
		}
	}

	results, err := store.Search(ctx, Query{AgentID: "u1", Tags: []string{"x"}})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 tagged entries, got %d", len(results))
	}
	if results[0].Key != "high-new" || results[1].Key != "high-old" || results[2].Key != "low" {
		t.Fatalf("unexpected order: %s %s %s", results[0].Key, results[1].Key, results[2].Key)
	}
}

func TestSQLiteDelete(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	_ = store.Store(ctx, NewEntry("u1", "k", "v", nil))
	if err := store.Delete(ctx, "u1", "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, found, _ := store.Retrieve(ctx, "u1", "k"); found {
		t.Fatal("expected entry gone")
	}
	if err := store.Delete(ctx, "u1", "k"); err != nil {
		t.Fatalf("second delete must be a no-op: %v", err)
	}
}
