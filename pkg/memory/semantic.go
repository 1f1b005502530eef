// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
)

// SemanticIndex mirrors memory entries into a vector store so they can be
// recalled by meaning instead of key or tag. It is an optional companion to
// a Store: writes go to both, semantic reads come back as (agent_id, key)
// references resolved against the Store.
type SemanticIndex struct {
	store      VectorStore
	embedder   Embedder
	collection string
}

// NewSemanticIndex builds an index over the given collection.
func NewSemanticIndex(store VectorStore, embedder Embedder, collection string) *SemanticIndex {
	return &SemanticIndex{store: store, embedder: embedder, collection: collection}
}

// Initialize probes the embedder for its dimension and ensures the collection.
func (si *SemanticIndex) Initialize(ctx context.Context) error {
	vec, err := si.embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return errors.New(errors.CodeMemoryError, "embedder probe failed", err)
	}
	if err := si.store.CreateCollection(ctx, si.collection, uint64(len(vec))); err != nil {
		// Collection may already exist; a working search confirms that.
		if _, searchErr := si.store.Search(ctx, si.collection, vec, 1, 0); searchErr == nil {
			return nil
		}
		return errors.New(errors.CodeMemoryError, "create collection failed", err)
	}
	return nil
}

// Index embeds the entry's key and value text and upserts it.
func (si *SemanticIndex) Index(ctx context.Context, entry Entry) error {
	vector, err := si.embedder.Embed(ctx, entryText(entry))
	if err != nil {
		return errors.New(errors.CodeMemoryError, "embed entry failed", err)
	}
	point := Point{
		ID:     pointID(entry),
		Vector: vector,
		Payload: map[string]interface{}{
			"agent_id": entry.AgentID,
			"key":      entry.Key,
		},
	}
	if err := si.store.Upsert(ctx, si.collection, []Point{point}); err != nil {
		return errors.New(errors.CodeMemoryError, "upsert point failed", err)
	}
	return nil
}

// Recall returns the keys of the agent's entries most similar to the query,
// best first, filtered by the similarity floor.
func (si *SemanticIndex) Recall(ctx context.Context, agentID, query string, topK int, floor float32) ([]string, error) {
	vector, err := si.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "embed query failed", err)
	}
	results, err := si.store.Search(ctx, si.collection, vector, topK, floor)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "semantic search failed", err)
	}
	keys := make([]string, 0, len(results))
	for _, r := range results {
		if r.Point.Payload["agent_id"] != agentID {
			continue
		}
		if key, ok := r.Point.Payload["key"].(string); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func entryText(entry Entry) string {
	value, err := json.Marshal(entry.Value)
	if err != nil {
		return entry.Key
	}
	return fmt.Sprintf("%s %s", entry.Key, value)
}

// pointID derives the vector point id from (agent_id, key) so re-storing a
// key overwrites its point, matching the Store upsert contract.
func pointID(entry Entry) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(entry.AgentID+"/"+entry.Key)).String()
}

// IndexedStore decorates a Store so every write is mirrored into a
// SemanticIndex and entries can be recalled by meaning. The mirror is best
// effort: an index failure logs a warning and never fails the write.
type IndexedStore struct {
	inner Store
	index *SemanticIndex
}

// NewIndexedStore wraps inner with the given index.
func NewIndexedStore(inner Store, index *SemanticIndex) *IndexedStore {
	return &IndexedStore{inner: inner, index: index}
}

// Store upserts the entry and mirrors it into the index.
func (s *IndexedStore) Store(ctx context.Context, entry Entry) error {
	if err := s.inner.Store(ctx, entry); err != nil {
		return err
	}
	if err := s.index.Index(ctx, entry); err != nil {
		slog.Warn("memory.index_failed",
			slog.String("agent_id", entry.AgentID),
			slog.String("key", entry.Key),
			slog.String("error", err.Error()))
	}
	return nil
}

// Retrieve delegates to the wrapped store.
func (s *IndexedStore) Retrieve(ctx context.Context, agentID, key string) (Entry, bool, error) {
	return s.inner.Retrieve(ctx, agentID, key)
}

// Search delegates to the wrapped store.
func (s *IndexedStore) Search(ctx context.Context, query Query) ([]Entry, error) {
	return s.inner.Search(ctx, query)
}

// Delete delegates to the wrapped store. The vector point stays behind;
// Recall resolves keys against the store, so a deleted entry drops out of
// recall results anyway.
func (s *IndexedStore) Delete(ctx context.Context, agentID, key string) error {
	return s.inner.Delete(ctx, agentID, key)
}

// Close delegates to the wrapped store.
func (s *IndexedStore) Close() error {
	return s.inner.Close()
}

// Recall returns the agent's entries most similar to the query, best first.
// Keys whose entries have been deleted or expired are skipped.
func (s *IndexedStore) Recall(ctx context.Context, agentID, query string, topK int, floor float32) ([]Entry, error) {
	keys, err := s.index.Recall(ctx, agentID, query, topK, floor)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		entry, found, err := s.inner.Retrieve(ctx, agentID, key)
		if err != nil {
			return nil, err
		}
		if found {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

var _ Store = (*IndexedStore)(nil)
