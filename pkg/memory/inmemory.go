// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is the default Store backend: a reader-writer locked map.
// Expired entries are dropped lazily on read and by an optional background
// sweeper; reads copy matching entries so a concurrent eviction never exposes
// partial state.
type InMemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]Entry // composite key agent_id + "\x00" + key
	maxEntries int

	sweepOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithMaxEntries caps the store; on overflow the oldest entry is evicted.
func WithMaxEntries(max int) InMemoryOption {
	return func(s *InMemoryStore) {
		if max > 0 {
			s.maxEntries = max
		}
	}
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		entries:    make(map[string]Entry),
		maxEntries: 10000,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func compositeKey(agentID, key string) string {
	return agentID + "\x00" + key
}

// Store upserts by (agent_id, key).
func (s *InMemoryStore) Store(_ context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ck := compositeKey(entry.AgentID, entry.Key)
	if _, exists := s.entries[ck]; !exists && len(s.entries) >= s.maxEntries {
		s.evictOldestLocked()
	}
	s.entries[ck] = entry
	return nil
}

// evictOldestLocked drops the oldest entry to make room. Caller holds mu.
func (s *InMemoryStore) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range s.entries {
		if oldestKey == "" || e.CreatedAt.Before(oldest) {
			oldestKey = k
			oldest = e.CreatedAt
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
		slog.Debug("memory.evict_oldest", slog.String("key", oldestKey))
	}
}

// Retrieve returns the entry, dropping it lazily if expired.
func (s *InMemoryStore) Retrieve(_ context.Context, agentID, key string) (Entry, bool, error) {
	ck := compositeKey(agentID, key)

	s.mu.RLock()
	entry, ok := s.entries[ck]
	s.mu.RUnlock()

	if !ok {
		return Entry{}, false, nil
	}
	if entry.Expired(time.Now()) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Store may have replaced it.
		if current, ok := s.entries[ck]; ok && current.Expired(time.Now()) {
			delete(s.entries, ck)
		}
		s.mu.Unlock()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Search returns matching live entries, importance-descending, ties broken by
// most recent creation. The sort is stable for deterministic output.
func (s *InMemoryStore) Search(_ context.Context, query Query) ([]Entry, error) {
	now := time.Now()

	s.mu.RLock()
	results := make([]Entry, 0)
	for _, e := range s.entries {
		if e.Expired(now) {
			continue
		}
		if matches(e, query) {
			results = append(results, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Importance != results[j].Importance {
			return results[i].Importance > results[j].Importance
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].Key < results[j].Key
	})

	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

// Delete removes the entry; absent keys are a no-op.
func (s *InMemoryStore) Delete(_ context.Context, agentID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, compositeKey(agentID, key))
	return nil
}

// StartSweeper launches the background eviction loop. Safe to call once.
func (s *InMemoryStore) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.sweepOnce.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-s.stop:
					return
				case <-ticker.C:
					s.sweep()
				}
			}
		}()
	})
}

func (s *InMemoryStore) sweep() {
	now := time.Now()

	s.mu.RLock()
	expired := make([]string, 0)
	for k, e := range s.entries {
		if e.Expired(now) {
			expired = append(expired, k)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	s.mu.Lock()
	for _, k := range expired {
		if e, ok := s.entries[k]; ok && e.Expired(now) {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()

	slog.Debug("memory.sweep", slog.Int("evicted", len(expired)))
}

// Len reports the number of stored entries, expired included.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the sweeper.
func (s *InMemoryStore) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.wg.Wait()
	return nil
}

var _ Store = (*InMemoryStore)(nil)
