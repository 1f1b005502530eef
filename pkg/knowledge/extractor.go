// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

// Package knowledge turns unstructured conversation or document text into
// structured, confidence-scored memory entries through a model call.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/llm"
	"github.com/lamwimham/neuroflow-sub001/pkg/memory"
	"github.com/lamwimham/neuroflow-sub001/pkg/telemetry"
)

// Category classifies an extracted item.
type Category string

const (
	CategoryPersonalInfo Category = "PersonalInfo"
	CategoryPreference   Category = "Preference"
	CategorySkill        Category = "Skill"
	CategoryInterest     Category = "Interest"
	CategoryFact         Category = "Fact"
)

var categoryKeys = map[Category]string{
	CategoryPersonalInfo: "personal_info",
	CategoryPreference:   "preference",
	CategorySkill:        "skill",
	CategoryInterest:     "interest",
	CategoryFact:         "fact",
}

// Valid reports whether c is a recognized category.
func (c Category) Valid() bool {
	_, ok := categoryKeys[c]
	return ok
}

// KeyForm returns the lowercase form used in memory keys and tags.
func (c Category) KeyForm() string {
	return categoryKeys[c]
}

// Item is one candidate knowledge fact emitted by the model. Items are
// transient: validation converts them into memory entries.
type Item struct {
	Category   Category `json:"category"`
	Key        string   `json:"key"`
	Value      string   `json:"value"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags,omitempty"`
}

// Extractor prompts a model for knowledge items and persists the valid ones.
type Extractor struct {
	provider    llm.Provider
	store       memory.Store
	model       string
	temperature float64
	reviewFloor float64
	metrics     *telemetry.RouterMetrics
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithModel sets the model name sent on extraction requests.
func WithModel(model string) ExtractorOption {
	return func(e *Extractor) { e.model = model }
}

// WithReviewFloor sets the confidence below which stored items are tagged
// needs_review rather than trusted outright.
func WithReviewFloor(floor float64) ExtractorOption {
	return func(e *Extractor) { e.reviewFloor = floor }
}

// WithMetrics wires extraction metrics.
func WithMetrics(m *telemetry.RouterMetrics) ExtractorOption {
	return func(e *Extractor) { e.metrics = m }
}

// NewExtractor creates an extractor writing to the given store.
func NewExtractor(provider llm.Provider, store memory.Store, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		provider:    provider,
		store:       store,
		model:       "qwen2.5",
		temperature: 0.1,
		reviewFloor: 0.5,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

const promptInstructions = `Extract knowledge about the user as a JSON array.
Each element must be an object with exactly these fields:
  "category": one of "PersonalInfo", "Preference", "Skill", "Interest", "Fact"
  "key": short snake_case identifier for the fact
  "value": the fact itself, as a plain string
  "confidence": number between 0.0 and 1.0
  "tags": optional array of strings
Respond with the JSON array only. No prose, no markdown. Return [] if the
text contains nothing worth remembering.`

// BuildPrompt renders the extraction prompt for a conversation transcript.
func (e *Extractor) BuildPrompt(transcript string) string {
	return fmt.Sprintf("%s\n\nConversation:\n%s", promptInstructions, transcript)
}

// BuildDocumentPrompt renders the extraction prompt for free-form document
// text.
func (e *Extractor) BuildDocumentPrompt(document string) string {
	return fmt.Sprintf("%s\n\nDocument:\n%s", promptInstructions, document)
}

// ExtractFromConversation runs extraction over a transcript and stores the
// surviving items for the agent. It returns the entries written.
func (e *Extractor) ExtractFromConversation(ctx context.Context, agentID, transcript string) ([]memory.Entry, error) {
	return e.extract(ctx, agentID, e.BuildPrompt(transcript))
}

// ExtractFromDocument runs extraction over document text.
func (e *Extractor) ExtractFromDocument(ctx context.Context, agentID, document string) ([]memory.Entry, error) {
	return e.extract(ctx, agentID, e.BuildDocumentPrompt(document))
}

func (e *Extractor) extract(ctx context.Context, agentID, prompt string) ([]memory.Entry, error) {
	resp, err := e.provider.Chat(ctx, llm.ChatRequest{
		Model:       e.model,
		Temperature: e.temperature,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		e.metrics.RecordExtraction(ctx, 0, err)
		return nil, errors.New(errors.CodeExternalServiceError, "extraction model call failed", err)
	}

	items, err := Parse(resp.Content)
	if err != nil {
		e.metrics.RecordExtraction(ctx, 0, err)
		return nil, err
	}

	entries, err := e.storeItems(ctx, agentID, Validate(items))
	e.metrics.RecordExtraction(ctx, len(entries), err)
	return entries, err
}

func (e *Extractor) storeItems(ctx context.Context, agentID string, items []Item) ([]memory.Entry, error) {
	entries := make([]memory.Entry, 0, len(items))
	for _, item := range items {
		entry := e.ToEntry(agentID, item)
		if err := e.store.Store(ctx, entry); err != nil {
			return entries, errors.New(errors.CodeMemoryError, "store extracted knowledge", err)
		}
		slog.Debug("knowledge.stored",
			slog.String("agent_id", agentID),
			slog.String("key", entry.Key),
			slog.Float64("confidence", item.Confidence))
		entries = append(entries, entry)
	}
	return entries, nil
}

// ToEntry converts a validated item into its memory entry form.
func (e *Extractor) ToEntry(agentID string, item Item) memory.Entry {
	tags := append([]string{}, item.Tags...)
	tags = appendMissing(tags, "knowledge")
	tags = appendMissing(tags, item.Category.KeyForm())
	if item.Confidence < e.reviewFloor {
		tags = appendMissing(tags, "needs_review")
	}
	key := fmt.Sprintf("knowledge:%s:%s", item.Category.KeyForm(), item.Key)
	return memory.NewEntry(agentID, key, item.Value, tags).
		WithImportance(item.Confidence)
}

// Parse decodes the model's reply into raw items. Code fences around the
// array are tolerated; anything that does not decode to a JSON array is an
// ExtractionParseError.
func Parse(content string) ([]Item, error) {
	cleaned := stripCodeFences(content)
	if cleaned == "" {
		return nil, errors.Newf(errors.CodeExtractionParseError, "empty extraction response")
	}
	var items []Item
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, errors.New(errors.CodeExtractionParseError, "extraction response is not a JSON array", err)
	}
	return items, nil
}

// Validate filters items the pipeline must never persist: empty keys,
// confidence outside [0,1], unknown categories.
func Validate(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Key) == "" {
			continue
		}
		if item.Confidence < 0 || item.Confidence > 1 {
			continue
		}
		if !item.Category.Valid() {
			continue
		}
		out = append(out, item)
	}
	return out
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func appendMissing(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}
