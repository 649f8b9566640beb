package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driving"
	"github.com/gitethanwoo/openbase-sub001/internal/core/services"
)

// Handlers holds the HTTP handler dependencies
type Handlers struct {
	chat          driving.ChatService
	sources       driving.SourceService
	jobs          driving.JobService
	conversations driving.ConversationService
	retrainer     Retrainer
	db            Pinger
	cache         Pinger
	version       string
	logger        *slog.Logger
}

// HandlersConfig holds configuration for Handlers
type HandlersConfig struct {
	Chat          driving.ChatService
	Sources       driving.SourceService
	Jobs          driving.JobService
	Conversations driving.ConversationService
	Retrainer     Retrainer
	DB            Pinger
	Cache         Pinger
	Version       string
	Logger        *slog.Logger
}

// NewHandlers creates a new Handlers
func NewHandlers(cfg HandlersConfig) *Handlers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		chat:          cfg.Chat,
		sources:       cfg.Sources,
		jobs:          cfg.Jobs,
		conversations: cfg.Conversations,
		retrainer:     cfg.Retrainer,
		db:            cfg.DB,
		cache:         cfg.Cache,
		version:       cfg.Version,
		logger:        logger,
	}
}

// --- Chat ---

type chatRequestBody struct {
	VisitorID      string            `json:"visitor_id"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Messages       []domain.ChatTurn `json:"messages"`
}

// flushingSink streams tokens straight to the client. A write error means
// the client went away; the orchestrator keeps persisting regardless.
type flushingSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	wrote   int
}

func (s *flushingSink) Send(token string) error {
	n, err := s.w.Write([]byte(token))
	s.wrote += n
	if err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Chat handles POST /api/v1/chat. The response body is the assistant
// message streamed as chunked plain text; the conversation and message ids
// are delivered as trailers so tokens flow before the turn completes.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	scope := GetScope(r.Context())
	if scope == nil {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}
	if body.VisitorID == "" {
		writeError(w, http.StatusBadRequest, "visitor_id is required")
		return
	}

	req := driving.ChatRequest{
		OrganizationID: scope.OrganizationID,
		AgentID:        scope.AgentID,
		VisitorID:      body.VisitorID,
		ConversationID: body.ConversationID,
		Messages:       body.Messages,
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "credential is not bound to an agent")
		return
	}

	flusher, _ := w.(http.Flusher)
	sink := &flushingSink{w: w, flusher: flusher}

	// New conversations only get an id once the turn starts, after headers
	// are committed, so the ids travel as trailers. Known conversations get
	// the header up front as a convenience.
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Trailer", "X-Conversation-Id, X-Message-Id")
	if body.ConversationID != "" {
		w.Header().Set("X-Conversation-Id", body.ConversationID)
	}

	result, err := h.chat.Stream(r.Context(), req, sink)
	if err != nil {
		// The orchestrator fails fast: errors surface before the first
		// token, so the status line is still ours to write.
		h.writeChatError(w, err)
		return
	}

	if sink.wrote == 0 {
		// Nothing streamed (generation fell back before the first token);
		// the result content is authoritative, deliver it whole.
		fmt.Fprint(w, result.Content)
	}

	w.Header().Set("X-Conversation-Id", result.ConversationID)
	w.Header().Set("X-Message-Id", result.MessageID)
}

func (h *Handlers) writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrCreditsExhausted):
		writeError(w, http.StatusPaymentRequired, "message credits exhausted")
	case errors.Is(err, domain.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	case services.IsAdmissionError(err):
		writeError(w, http.StatusTooManyRequests, "request not admitted")
	default:
		h.writeDomainError(w, err)
	}
}

// --- Sources ---

type registerSourceBody struct {
	Name     string            `json:"name"`
	Type     domain.SourceType `json:"type"`
	Content  string            `json:"content,omitempty"`
	URL      string            `json:"url,omitempty"`
	Question string            `json:"question,omitempty"`
	Answer   string            `json:"answer,omitempty"`
}

// RegisterSource handles POST /api/v1/sources
func (h *Handlers) RegisterSource(w http.ResponseWriter, r *http.Request) {
	scope := GetScope(r.Context())
	if scope == nil {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	var body registerSourceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	source, err := h.sources.Register(r.Context(), driving.RegisterSourceRequest{
		OrganizationID: scope.OrganizationID,
		AgentID:        scope.AgentID,
		Name:           body.Name,
		Type:           body.Type,
		Content:        body.Content,
		URL:            body.URL,
		Question:       body.Question,
		Answer:         body.Answer,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, source)
}

// ListSources handles GET /api/v1/sources
func (h *Handlers) ListSources(w http.ResponseWriter, r *http.Request) {
	scope := GetScope(r.Context())
	if scope == nil {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		agentID = scope.AgentID
	}
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	sources, err := h.sources.ListByAgent(r.Context(), scope.OrganizationID, agentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

// GetSource handles GET /api/v1/sources/{id}
func (h *Handlers) GetSource(w http.ResponseWriter, r *http.Request) {
	scope := GetScope(r.Context())
	if scope == nil {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	source, err := h.sources.Get(r.Context(), scope.OrganizationID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, source)
}

// DeleteSource handles DELETE /api/v1/sources/{id}
func (h *Handlers) DeleteSource(w http.ResponseWriter, r *http.Request) {
	scope := GetScope(r.Context())
	if scope == nil {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	if err := h.sources.Delete(r.Context(), scope.OrganizationID, r.PathValue("id")); err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type triggerIngestBody struct {
	IdempotencyKey string `json:"idempotency_key"`
	Force          bool   `json:"force,omitempty"`
}

// TriggerIngest handles POST /api/v1/sources/{id}/ingest. It enqueues the
// job and returns 202; callers poll the job endpoint for progress.
func (h *Handlers) TriggerIngest(w http.ResponseWriter, r *http.Request) {
	scope := GetScope(r.Context())
	if scope == nil {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	var body triggerIngestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.IdempotencyKey == "" {
		writeError(w, http.StatusBadRequest, "idempotency_key is required")
		return
	}

	job, err := h.sources.TriggerIngest(r.Context(), driving.TriggerIngestRequest{
		OrganizationID: scope.OrganizationID,
		AgentID:        scope.AgentID,
		SourceID:       r.PathValue("id"),
		IdempotencyKey: body.IdempotencyKey,
		Force:          body.Force,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// TriggerRetrain handles POST /api/v1/agents/{id}/retrain
func (h *Handlers) TriggerRetrain(w http.ResponseWriter, r *http.Request) {
	scope := GetScope(r.Context())
	if scope == nil {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	var body triggerIngestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.IdempotencyKey == "" {
		writeError(w, http.StatusBadRequest, "idempotency_key is required")
		return
	}

	job, err := h.retrainer.TriggerRetrain(r.Context(), scope.OrganizationID, r.PathValue("id"), body.IdempotencyKey, body.Force)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// --- Jobs ---

// GetJob handles GET /api/v1/jobs/{id}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	scope := GetScope(r.Context())
	if scope == nil {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	job, err := h.jobs.Get(r.Context(), scope.OrganizationID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// CancelJob handles POST /api/v1/jobs/{id}/cancel
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	scope := GetScope(r.Context())
	if scope == nil {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	if err := h.jobs.Cancel(r.Context(), scope.OrganizationID, r.PathValue("id")); err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// RetryJob handles POST /api/v1/jobs/{id}/retry
func (h *Handlers) RetryJob(w http.ResponseWriter, r *http.Request) {
	scope := GetScope(r.Context())
	if scope == nil {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	if err := h.jobs.Retry(r.Context(), scope.OrganizationID, r.PathValue("id")); err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
}

// ListStuckJobs handles GET /api/v1/jobs/stuck
func (h *Handlers) ListStuckJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.ListStuck(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// --- Conversations ---

// ListMessages handles GET /api/v1/conversations/{id}/messages. This is the
// resume path: an interrupted client polls here and sees the latest durable
// checkpoint of any in-flight assistant message.
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	scope := GetScope(r.Context())
	if scope == nil {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	messages, err := h.conversations.ListMessages(r.Context(), scope.OrganizationID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// --- Probes ---

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			checks["cache"] = err.Error()
			healthy = false
		} else {
			checks["cache"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"ready":  healthy,
		"checks": checks,
	})
}

// Version handles GET /version
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}

// --- Helpers ---

func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrCreditsExhausted):
		writeError(w, http.StatusPaymentRequired, "message credits exhausted")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
