// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import "context"

// Query filters a Search. All provided filters are AND-combined.
type Query struct {
	AgentID       string   `json:"agent_id"`
	Tags          []string `json:"tags,omitempty"`
	MinImportance *float64 `json:"min_importance,omitempty"`
	Type          Type     `json:"memory_type,omitempty"`
	Limit         int      `json:"limit,omitempty"`
}

// Store is the storage contract for memory entries. Implementations must
// exclude expired entries from Retrieve/Search and keep reads snapshot-safe
// against concurrent eviction.
type Store interface {
	// Store upserts by (agent_id, key).
	Store(ctx context.Context, entry Entry) error

	// Retrieve returns the entry, or found=false if absent or expired.
	Retrieve(ctx context.Context, agentID, key string) (Entry, bool, error)

	// Search returns matching entries in descending importance order,
	// ties broken by most recent creation.
	Search(ctx context.Context, query Query) ([]Entry, error)

	// Delete removes the entry. Deleting an absent key is a no-op.
	Delete(ctx context.Context, agentID, key string) error

	// Close releases backend resources.
	Close() error
}

func matches(e Entry, q Query) bool {
	if e.AgentID != q.AgentID {
		return false
	}
	for _, tag := range q.Tags {
		if !e.HasTag(tag) {
			return false
		}
	}
	if q.MinImportance != nil && e.Importance < *q.MinImportance {
		return false
	}
	if q.Type != "" && e.Type != q.Type {
		return false
	}
	return true
}
