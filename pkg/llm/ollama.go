// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaProvider talks to a local Ollama server over its /api/chat endpoint.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

// NewOllama creates a provider for the given base URL, defaulting to the
// standard local Ollama address.
func NewOllama(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Tools    []Tool         `json:"tools,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// ollamaChatEvent is one /api/chat response object. Non-streaming calls get
// a single event; streaming calls get one NDJSON line per increment.
type ollamaChatEvent struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

func (p *OllamaProvider) newChatRequest(ctx context.Context, req ChatRequest, stream bool) (*http.Request, error) {
	payload := ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   stream,
		Tools:    req.Tools,
	}
	if req.Temperature != 0 {
		payload.Options = map[string]any{"temperature": req.Temperature}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ollama: encode chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func usageOf(event ollamaChatEvent) Usage {
	return Usage{
		PromptTokens:     event.PromptEvalCount,
		CompletionTokens: event.EvalCount,
		TotalTokens:      event.PromptEvalCount + event.EvalCount,
	}
}

// Chat implements Provider.
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	httpReq, err := p.newChatRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: chat call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: chat returned status %d", resp.StatusCode)
	}

	var event ollamaChatEvent
	if err := json.NewDecoder(resp.Body).Decode(&event); err != nil {
		return nil, fmt.Errorf("ollama: decode chat response: %w", err)
	}

	return &ChatResponse{
		Content:   event.Message.Content,
		ToolCalls: event.Message.ToolCalls,
		Usage:     usageOf(event),
	}, nil
}

// ChatStream implements StreamingProvider. The returned channel is closed
// after the final chunk, which carries Done, the accumulated tool calls and
// the token usage.
func (p *OllamaProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	httpReq, err := p.newChatRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: chat call failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama: chat returned status %d: %s", resp.StatusCode, string(detail))
	}

	chunks := make(chan StreamChunk, 100)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		var toolCalls []ToolCall

		for {
			select {
			case <-ctx.Done():
				chunks <- StreamChunk{Error: ctx.Err()}
				return
			default:
			}

			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err != io.EOF {
					chunks <- StreamChunk{Error: err}
				}
				return
			}

			var event ollamaChatEvent
			if err := json.Unmarshal(line, &event); err != nil {
				// Skip malformed NDJSON lines.
				continue
			}

			// Ollama sends tool calls whole, not as deltas.
			if len(event.Message.ToolCalls) > 0 {
				toolCalls = event.Message.ToolCalls
			}

			if event.Done {
				usage := usageOf(event)
				chunks <- StreamChunk{Done: true, ToolCalls: toolCalls, Usage: &usage}
				return
			}
			if event.Message.Content != "" {
				chunks <- StreamChunk{Content: event.Message.Content}
			}
		}
	}()
	return chunks, nil
}

var _ Provider = (*OllamaProvider)(nil)
var _ StreamingProvider = (*OllamaProvider)(nil)
