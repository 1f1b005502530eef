// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi exposes the runtime over HTTP+JSON: tool dispatch, memory
// operations and knowledge extraction.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/knowledge"
	"github.com/lamwimham/neuroflow-sub001/pkg/memory"
	"github.com/lamwimham/neuroflow-sub001/pkg/orchestrator"
	"github.com/lamwimham/neuroflow-sub001/pkg/router"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

// Recaller is the semantic recall surface a memory.IndexedStore provides.
type Recaller interface {
	Recall(ctx context.Context, agentID, query string, topK int, floor float32) ([]memory.Entry, error)
}

// Server wires the HTTP surface over the router and memory pipeline.
type Server struct {
	router    *router.Router
	store     memory.Store
	log       memory.ConversationLog
	extractor *knowledge.Extractor
	orch      *orchestrator.Orchestrator
	recall    Recaller
	caller    tool.PermissionLevel
}

// Option configures a Server.
type Option func(*Server)

// WithCaller sets the permission level HTTP tool calls run under. The
// default is user level; the surface does not expose admin tools.
func WithCaller(level tool.PermissionLevel) Option {
	return func(s *Server) { s.caller = level }
}

// WithOrchestrator enables the /agent/turn endpoint.
func WithOrchestrator(o *orchestrator.Orchestrator) Option {
	return func(s *Server) { s.orch = o }
}

// WithRecall enables the /memory/recall endpoint.
func WithRecall(r Recaller) Option {
	return func(s *Server) { s.recall = r }
}

// New creates the HTTP API server.
func New(r *router.Router, store memory.Store, log memory.ConversationLog, extractor *knowledge.Extractor, opts ...Option) *Server {
	s := &Server{
		router:    r,
		store:     store,
		log:       log,
		extractor: extractor,
		caller:    tool.PermissionUser,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler for the runtime API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/tool/call", s.handleToolCall)
	mux.HandleFunc("/tool/list", s.handleToolList)
	mux.HandleFunc("/memory/store", s.handleMemoryStore)
	mux.HandleFunc("/memory/retrieve", s.handleMemoryRetrieve)
	mux.HandleFunc("/memory/search", s.handleMemorySearch)
	mux.HandleFunc("/memory/extract", s.handleMemoryExtract)
	mux.HandleFunc("/memory/conversation", s.handleConversation)
	if s.recall != nil {
		mux.HandleFunc("/memory/recall", s.handleMemoryRecall)
	}
	if s.orch != nil {
		mux.HandleFunc("/agent/turn", s.handleTurn)
	}
	return mux
}

type turnRequest struct {
	AgentID        string `json:"agent_id"`
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

func (s *Server) handleTurn(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body turnRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, errors.New(errors.CodeInvalidArguments, "malformed turn request", err))
		return
	}
	if body.AgentID == "" || body.ConversationID == "" || body.Message == "" {
		writeError(w, errors.Newf(errors.CodeInvalidArguments,
			"agent_id, conversation_id and message are required"))
		return
	}
	result, err := s.orch.Turn(req.Context(), body.AgentID, body.ConversationID, body.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleToolCall(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var call tool.Call
	if err := json.NewDecoder(req.Body).Decode(&call); err != nil {
		writeError(w, errors.New(errors.CodeInvalidArguments, "malformed tool call", err))
		return
	}
	if call.ToolName == "" {
		writeError(w, errors.Newf(errors.CodeInvalidArguments, "tool_name is required"))
		return
	}
	call.Caller = s.caller

	result := s.router.Dispatch(req.Context(), call)
	status := http.StatusOK
	if !result.Success {
		status = errors.New(result.ErrorCode, result.ErrorMessage, nil).StatusCode
	}
	writeJSON(w, status, result)
}

func (s *Server) handleToolList(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filter := router.Filter{
		Category: req.URL.Query().Get("category"),
		Source:   tool.Source(req.URL.Query().Get("source")),
	}
	writeJSON(w, http.StatusOK, s.router.List(filter))
}

func (s *Server) handleMemoryStore(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var entry memory.Entry
	if err := json.NewDecoder(req.Body).Decode(&entry); err != nil {
		writeError(w, errors.New(errors.CodeInvalidArguments, "malformed memory entry", err))
		return
	}
	if err := s.store.Store(req.Context(), entry); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": entry.Key})
}

type retrieveRequest struct {
	AgentID string `json:"agent_id"`
	Key     string `json:"key"`
}

func (s *Server) handleMemoryRetrieve(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body retrieveRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, errors.New(errors.CodeInvalidArguments, "malformed retrieve request", err))
		return
	}
	entry, found, err := s.store.Retrieve(req.Context(), body.AgentID, body.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		re := errors.Newf(errors.CodeMemoryError, "no memory entry %q for agent %q", body.Key, body.AgentID)
		re.StatusCode = http.StatusNotFound
		writeError(w, re)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var query memory.Query
	if err := json.NewDecoder(req.Body).Decode(&query); err != nil {
		writeError(w, errors.New(errors.CodeInvalidArguments, "malformed search query", err))
		return
	}
	entries, err := s.store.Search(req.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type recallRequest struct {
	AgentID string  `json:"agent_id"`
	Query   string  `json:"query"`
	TopK    int     `json:"top_k,omitempty"`
	Floor   float32 `json:"floor,omitempty"`
}

func (s *Server) handleMemoryRecall(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body recallRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, errors.New(errors.CodeInvalidArguments, "malformed recall request", err))
		return
	}
	if body.AgentID == "" || body.Query == "" {
		writeError(w, errors.Newf(errors.CodeInvalidArguments, "agent_id and query are required"))
		return
	}
	if body.TopK <= 0 {
		body.TopK = 5
	}
	entries, err := s.recall.Recall(req.Context(), body.AgentID, body.Query, body.TopK, body.Floor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type extractRequest struct {
	AgentID        string `json:"agent_id"`
	Text           string `json:"text,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Source         string `json:"source,omitempty"` // conversation (default) or document
}

func (s *Server) handleMemoryExtract(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body extractRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, errors.New(errors.CodeInvalidArguments, "malformed extract request", err))
		return
	}
	if body.AgentID == "" {
		writeError(w, errors.Newf(errors.CodeInvalidArguments, "agent_id is required"))
		return
	}

	text := body.Text
	if text == "" && body.ConversationID != "" {
		turns, err := s.log.Turns(req.Context(), body.ConversationID)
		if err != nil {
			writeError(w, err)
			return
		}
		text = memory.TranscriptText(turns)
	}
	if text == "" {
		writeError(w, errors.Newf(errors.CodeInvalidArguments, "text or conversation_id is required"))
		return
	}

	var entries []memory.Entry
	var err error
	if body.Source == "document" {
		entries, err = s.extractor.ExtractFromDocument(req.Context(), body.AgentID, text)
	} else {
		entries, err = s.extractor.ExtractFromConversation(req.Context(), body.AgentID, text)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type conversationRequest struct {
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
}

func (s *Server) handleConversation(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		var body conversationRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, errors.New(errors.CodeInvalidArguments, "malformed conversation turn", err))
			return
		}
		if body.ConversationID == "" || body.Role == "" {
			writeError(w, errors.Newf(errors.CodeInvalidArguments, "conversation_id and role are required"))
			return
		}
		if err := s.log.Append(req.Context(), body.ConversationID, memory.Turn{Role: body.Role, Content: body.Content}); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		conversationID := req.URL.Query().Get("conversation_id")
		if conversationID == "" {
			writeError(w, errors.Newf(errors.CodeInvalidArguments, "conversation_id is required"))
			return
		}
		turns, err := s.log.Turns(req.Context(), conversationID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, turns)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("httpapi.encode_failed", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, err error) {
	re := errors.AsRuntimeError(err)
	writeJSON(w, re.StatusCode, map[string]string{
		"error": re.Message,
		"code":  string(re.Code),
	})
}
