// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides the agent memory store: taggable, importance-scored
// entries scoped to one agent, with TTL expiry and pluggable backends.
package memory

import (
	"time"

	"github.com/google/uuid"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
)

// Type classifies an entry's retention intent.
type Type string

const (
	ShortTerm Type = "short_term"
	LongTerm  Type = "long_term"
	Working   Type = "working"
)

// Valid reports whether t is a known memory type.
func (t Type) Valid() bool {
	switch t {
	case ShortTerm, LongTerm, Working:
		return true
	}
	return false
}

// Entry is one persisted memory item. Key is unique per agent; storing under
// an existing (agent_id, key) overwrites.
type Entry struct {
	ID         string        `json:"id"`
	AgentID    string        `json:"agent_id"`
	Key        string        `json:"key"`
	Value      any           `json:"value"`
	Type       Type          `json:"memory_type"`
	Tags       []string      `json:"tags"`
	Importance float64       `json:"importance"`
	CreatedAt  time.Time     `json:"created_at"`
	TTL        time.Duration `json:"ttl,omitempty"`
}

// NewEntry builds a long-term entry with a fresh id and clamped importance.
func NewEntry(agentID, key string, value any, tags []string) Entry {
	return Entry{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		Key:        key,
		Value:      value,
		Type:       LongTerm,
		Tags:       tags,
		Importance: 0.5,
		CreatedAt:  time.Now().UTC(),
	}
}

// WithType sets the memory type.
func (e Entry) WithType(t Type) Entry {
	e.Type = t
	return e
}

// WithImportance sets importance, clamped to [0,1].
func (e Entry) WithImportance(importance float64) Entry {
	e.Importance = clamp(importance)
	return e
}

// WithTTL sets the time-to-live.
func (e Entry) WithTTL(ttl time.Duration) Entry {
	e.TTL = ttl
	return e
}

// ExpiresAt returns the expiry instant, or zero when the entry never expires.
func (e Entry) ExpiresAt() time.Time {
	if e.TTL <= 0 {
		return time.Time{}
	}
	return e.CreatedAt.Add(e.TTL)
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e Entry) Expired(now time.Time) bool {
	exp := e.ExpiresAt()
	return !exp.IsZero() && now.After(exp)
}

// HasTag reports whether the entry carries the tag.
func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate normalizes and checks the entry before any write. Importance is
// clamped rather than rejected; short-term entries must carry a TTL.
func (e *Entry) Validate() error {
	if e.AgentID == "" {
		return errors.Newf(errors.CodeMemoryError, "memory entry: agent_id is required")
	}
	if e.Key == "" {
		return errors.Newf(errors.CodeMemoryError, "memory entry: key is required")
	}
	if e.Type == "" {
		e.Type = LongTerm
	}
	if !e.Type.Valid() {
		return errors.Newf(errors.CodeMemoryError, "memory entry %q: unknown type %q", e.Key, e.Type)
	}
	if e.Type == ShortTerm && e.TTL <= 0 {
		return errors.Newf(errors.CodeMemoryError, "memory entry %q: short_term requires a ttl", e.Key)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Importance = clamp(e.Importance)
	return nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
