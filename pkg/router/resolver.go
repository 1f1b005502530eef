// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"math"
	"sync"

	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

// Embedder converts text into a vector. Satisfied by memory.Embedder
// implementations such as the ollama client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// semanticResolver matches a free-form tool name against registered
// definitions by embedding similarity. Definition embeddings are computed
// once and cached by name; registration invalidates the cached vector.
type semanticResolver struct {
	embedder Embedder

	mu    sync.Mutex
	cache map[string][]float32
}

func newSemanticResolver(embedder Embedder) *semanticResolver {
	return &semanticResolver{
		embedder: embedder,
		cache:    make(map[string][]float32),
	}
}

// warm precomputes embeddings for the given definitions so the first
// dispatch does not pay the full embedding cost.
func (s *semanticResolver) warm(ctx context.Context, defs []*tool.Definition) error {
	for _, def := range defs {
		if _, err := s.vectorFor(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

func (s *semanticResolver) invalidate(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}

// resolve returns the best-scoring definition and its cosine similarity.
// The caller applies the confidence floor.
func (s *semanticResolver) resolve(ctx context.Context, query string, defs []*tool.Definition) (*tool.Definition, float32, error) {
	if len(defs) == 0 {
		return nil, 0, nil
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	var best *tool.Definition
	var bestScore float32 = -1
	for _, def := range defs {
		vec, err := s.vectorFor(ctx, def)
		if err != nil {
			return nil, 0, err
		}
		if score := cosineSimilarity(queryVec, vec); score > bestScore {
			best, bestScore = def, score
		}
	}
	return best, bestScore, nil
}

func (s *semanticResolver) vectorFor(ctx context.Context, def *tool.Definition) ([]float32, error) {
	s.mu.Lock()
	vec, ok := s.cache[def.Name]
	s.mu.Unlock()
	if ok {
		return vec, nil
	}

	vec, err := s.embedder.Embed(ctx, def.Name+": "+def.Description)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[def.Name] = vec
	s.mu.Unlock()
	return vec, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
