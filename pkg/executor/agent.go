// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/resilience"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

// DedupKeyHeader carries the call id so a remote agent can drop retried
// requests it has already applied. Best effort; the remote side owns the
// guarantee.
const DedupKeyHeader = "X-Dedup-Key"

// AgentExecutor forwards calls as assistance requests to remote agent
// endpoints over HTTP+JSON. The remote response is treated as an opaque
// result payload. Transient transport failures are retried with backoff;
// a run of failures opens a circuit breaker so a dead endpoint is not
// hammered on every dispatch.
type AgentExecutor struct {
	client   *http.Client
	endpoint string
	retry    resilience.RetryConfig
	breaker  *resilience.Breaker
	inflight inflight
}

// AgentOption configures an AgentExecutor.
type AgentOption func(*AgentExecutor)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(client *http.Client) AgentOption {
	return func(e *AgentExecutor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithRetry overrides the retry policy for assistance requests.
func WithRetry(cfg resilience.RetryConfig) AgentOption {
	return func(e *AgentExecutor) { e.retry = cfg }
}

// WithBreaker overrides the circuit breaker guarding the endpoint.
func WithBreaker(cfg resilience.BreakerConfig) AgentOption {
	return func(e *AgentExecutor) { e.breaker = resilience.NewBreaker(cfg) }
}

// NewAgentExecutor creates an executor with a default endpoint. Definitions
// may override it per tool via an "endpoint" metadata entry.
func NewAgentExecutor(endpoint string, opts ...AgentOption) *AgentExecutor {
	e := &AgentExecutor{
		client:   &http.Client{Timeout: 60 * time.Second},
		endpoint: endpoint,
		retry:    resilience.DefaultRetryConfig(),
		breaker:  resilience.NewBreaker(resilience.BreakerConfig{Name: "agent"}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// assistanceRequest is the wire shape sent to the remote agent.
type assistanceRequest struct {
	CallID    string         `json:"call_id"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// assistanceResponse is the wire shape the remote agent answers with.
type assistanceResponse struct {
	Success bool             `json:"success"`
	Result  any              `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
	Tokens  *tool.TokensUsed `json:"tokens_used,omitempty"`
}

// Execute posts the assistance request and maps the reply onto a result.
func (e *AgentExecutor) Execute(ctx context.Context, def *tool.Definition, call tool.Call) tool.Result {
	endpoint := e.endpoint
	if override, ok := def.Metadata["endpoint"].(string); ok && override != "" {
		endpoint = override
	}
	if endpoint == "" {
		return tool.Failure(call.CallID, errors.Newf(errors.CodeExternalServiceError,
			"no agent endpoint for tool %q", def.Name))
	}

	body, err := json.Marshal(assistanceRequest{
		CallID:    call.CallID,
		ToolName:  call.ToolName,
		Arguments: call.Arguments,
	})
	if err != nil {
		return tool.Failure(call.CallID, errors.New(errors.CodeInternal, "encode assistance request", err))
	}

	defer e.inflight.enter()()

	start := time.Now()
	var decoded assistanceResponse
	err = e.retry.Do(ctx, func() error {
		return e.breaker.Call(func() error {
			return e.post(ctx, endpoint, call.CallID, body, &decoded)
		})
	})
	elapsed := time.Since(start)
	if err != nil {
		return tool.FailureWithElapsed(call.CallID, err, elapsed)
	}

	result := tool.Success(call.CallID, decoded.Result, elapsed)
	result.Tokens = decoded.Tokens
	return result
}

// post performs one assistance roundtrip. Connection failures and 5xx
// responses are flagged recoverable so the retry policy picks them up;
// remote refusals and malformed replies are final.
func (e *AgentExecutor) post(ctx context.Context, endpoint, callID string, body []byte, decoded *assistanceResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.New(errors.CodeExternalServiceError, "build assistance request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if callID != "" {
		req.Header.Set(DedupKeyHeader, callID)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.New(errors.CodeTimeout, "assistance request cancelled", ctx.Err())
		}
		return errors.New(errors.CodeExternalServiceError, "assistance request failed", err).
			WithRecoverable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf(errors.CodeExternalServiceError,
			"agent endpoint returned status %d", resp.StatusCode).
			WithRecoverable(resp.StatusCode >= 500)
	}

	if err := json.NewDecoder(resp.Body).Decode(decoded); err != nil {
		return errors.New(errors.CodeExternalServiceError, "decode assistance response", err)
	}
	if !decoded.Success {
		msg := decoded.Error
		if msg == "" {
			msg = "remote agent reported failure"
		}
		return errors.Newf(errors.CodeExternalServiceError, "remote agent: %s", msg)
	}
	return nil
}

// Status reports Unavailable without an endpoint or client.
func (e *AgentExecutor) Status() Status {
	if e.client == nil {
		return Unavailable
	}
	return e.inflight.status()
}

// Source returns the capability source this executor serves.
func (e *AgentExecutor) Source() tool.Source { return tool.SourceAgent }

var _ Executor = (*AgentExecutor)(nil)
