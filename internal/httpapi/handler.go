// Package httpapi exposes the assistant's RPC surface over chi. Every
// operation checks the caller's role before touching anything, and every
// failure maps to a short actionable message, never a stack trace.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/norelinorth/norelinorth-ai-assistant/internal/assist"
	"github.com/norelinorth/norelinorth-ai-assistant/internal/auth"
	"github.com/norelinorth/norelinorth-ai-assistant/internal/provider"
	"github.com/norelinorth/norelinorth-ai-assistant/internal/session"
	"github.com/norelinorth/norelinorth-ai-assistant/internal/tracing"
	"github.com/norelinorth/norelinorth-ai-assistant/pkg/ratelimit"
)

type Handler struct {
	assist       *assist.Service
	sessions     *session.Service
	providerCfg  provider.Store
	resolver     *provider.Resolver
	sealer       *provider.Sealer
	tracingCache *tracing.ClientCache
	limiter      *ratelimit.Limiter
	tracer       trace.Tracer
	logger       *logrus.Logger
}

func NewHandler(
	assistSvc *assist.Service,
	sessions *session.Service,
	providerCfg provider.Store,
	resolver *provider.Resolver,
	sealer *provider.Sealer,
	tracingCache *tracing.ClientCache,
	limiter *ratelimit.Limiter,
	tracer trace.Tracer,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		assist:       assistSvc,
		sessions:     sessions,
		providerCfg:  providerCfg,
		resolver:     resolver,
		sealer:       sealer,
		tracingCache: tracingCache,
		limiter:      limiter,
		tracer:       tracer,
		logger:       logger,
	}
}

// Routes mounts every RPC operation on r. The caller wraps the group in the
// auth middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/v1/provider/config", h.HandleGetConfig)
	r.Put("/v1/provider/config", h.HandleUpdateConfig)
	r.Get("/v1/provider/validate", h.HandleValidateConfig)
	r.Get("/v1/tracing/validate", h.HandleValidateTracing)
	r.Post("/v1/ai/call", h.HandleCallAI)
	r.Post("/v1/sessions", h.HandleStartSession)
	r.Post("/v1/sessions/{id}/chat", h.HandleChat)
	r.Get("/v1/sessions", h.HandleRecentSessions)
	r.Get("/v1/sessions/{id}/messages", h.HandleSessionTurns)
}

// configView is what getConfig returns. The raw key never appears, only the
// tri-state status.
type configView struct {
	Provider     string             `json:"provider"`
	DefaultModel string             `json:"default_model"`
	APIBaseURL   string             `json:"api_base_url"`
	IsActive     bool               `json:"is_active"`
	APIKeyStatus provider.KeyStatus `json:"api_key_status"`
}

func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := auth.Require(ctx, auth.RoleUser); err != nil {
		h.writeError(w, err)
		return
	}

	cfg, err := h.providerCfg.Get(ctx)
	if err != nil && !errors.Is(err, provider.ErrConfigNotFound) {
		h.writeError(w, err)
		return
	}
	if cfg == nil {
		cfg = &provider.Config{}
	}

	writeJSON(w, http.StatusOK, configView{
		Provider:     cfg.Provider,
		DefaultModel: cfg.DefaultModel,
		APIBaseURL:   cfg.APIBaseURL,
		IsActive:     cfg.IsActive,
		APIKeyStatus: h.resolver.KeyStatus(ctx),
	})
}

// configUpdate carries a provider config write. Empty secret fields keep the
// stored values, so updating the base URL does not force re-entering keys.
type configUpdate struct {
	Provider         string   `json:"provider"`
	DefaultModel     string   `json:"default_model"`
	APIBaseURL       string   `json:"api_base_url"`
	APIKey           string   `json:"api_key"`
	IsActive         bool     `json:"is_active"`
	Temperature      *float64 `json:"temperature"`
	MaxTokens        *int     `json:"max_tokens"`
	EnableTracing    bool     `json:"enable_tracing"`
	TracingPublicKey string   `json:"tracing_public_key"`
	TracingSecretKey string   `json:"tracing_secret_key"`
	TracingHost      string   `json:"tracing_host"`
}

func (h *Handler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := auth.Require(ctx, auth.RoleAdmin); err != nil {
		h.writeError(w, err)
		return
	}

	var upd configUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	existing, err := h.providerCfg.Get(ctx)
	if err != nil && !errors.Is(err, provider.ErrConfigNotFound) {
		h.writeError(w, err)
		return
	}
	if existing == nil {
		existing = &provider.Config{}
	}

	cfg := &provider.Config{
		Provider:            upd.Provider,
		DefaultModel:        upd.DefaultModel,
		APIBaseURL:          upd.APIBaseURL,
		APIKeySealed:        existing.APIKeySealed,
		IsActive:            upd.IsActive,
		Temperature:         upd.Temperature,
		MaxTokens:           upd.MaxTokens,
		EnableTracing:       upd.EnableTracing,
		TracingPublicKey:    upd.TracingPublicKey,
		TracingSecretSealed: existing.TracingSecretSealed,
		TracingHost:         upd.TracingHost,
	}
	if cfg.TracingHost == "" {
		cfg.TracingHost = provider.DefaultTracingHost
	}

	if upd.APIKey != "" {
		sealed, err := h.sealer.Seal(upd.APIKey)
		if err != nil {
			h.writeError(w, err)
			return
		}
		cfg.APIKeySealed = sealed
	}
	if upd.TracingSecretKey != "" {
		sealed, err := h.sealer.Seal(upd.TracingSecretKey)
		if err != nil {
			h.writeError(w, err)
			return
		}
		cfg.TracingSecretSealed = sealed
	}

	if err := h.providerCfg.Save(ctx, cfg); err != nil {
		h.writeError(w, err)
		return
	}

	// Config changed: a cached tracing client may hold stale credentials.
	h.tracingCache.Invalidate()

	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *Handler) HandleValidateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := auth.Require(ctx, auth.RoleUser); err != nil {
		h.writeError(w, err)
		return
	}

	cfg, err := h.providerCfg.Get(ctx)
	if err != nil && !errors.Is(err, provider.ErrConfigNotFound) {
		h.writeError(w, err)
		return
	}

	result := h.assist.Validate(ctx, cfg)

	// deep=1 additionally proves the credentials with a live round trip.
	if r.URL.Query().Get("deep") == "1" && result.Configured && result.Active {
		if err := h.assist.TestConnection(ctx); err != nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"configured": result.Configured,
				"active":     result.Active,
				"connection": false,
				"error":      err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"configured": result.Configured,
			"active":     result.Active,
			"connection": true,
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleValidateTracing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := auth.Require(ctx, auth.RoleUser); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.tracingCache.Validate(ctx))
}

type callRequest struct {
	Prompt  string `json:"prompt"`
	Context string `json:"context,omitempty"`
	Model   string `json:"model,omitempty"`
	System  string `json:"system,omitempty"`
	Source  string `json:"source,omitempty"`
}

func (h *Handler) HandleCallAI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := auth.Require(ctx, auth.RoleUser); err != nil {
		h.writeError(w, err)
		return
	}
	user := auth.GetUser(ctx)

	if !h.allow(ctx, w, user) {
		return
	}

	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx, span := h.tracer.Start(ctx, "assist.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("user", user),
		attribute.String("request_id", auth.GetRequestID(ctx)),
		attribute.String("model", req.Model),
		attribute.String("source", req.Source),
	)

	reply, err := h.assist.CallAI(ctx, &assist.CallRequest{
		Prompt:  req.Prompt,
		Context: req.Context,
		Model:   req.Model,
		System:  req.System,
		Source:  req.Source,
		User:    user,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

type startSessionRequest struct {
	SubjectType string `json:"subject_type,omitempty"`
	SubjectID   string `json:"subject_id,omitempty"`
}

func (h *Handler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := auth.Require(ctx, auth.RoleUser); err != nil {
		h.writeError(w, err)
		return
	}

	var req startSessionRequest
	if r.Body != nil {
		// An empty body starts an unanchored conversation.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	sess, err := h.sessions.Start(ctx, auth.GetUser(ctx), req.SubjectType, req.SubjectID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

type chatRequest struct {
	Prompt  string `json:"prompt"`
	Context string `json:"context,omitempty"`
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := auth.Require(ctx, auth.RoleUser); err != nil {
		h.writeError(w, err)
		return
	}
	user := auth.GetUser(ctx)

	if !h.allow(ctx, w, user) {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx, span := h.tracer.Start(ctx, "session.chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("user", user),
		attribute.String("session_id", chi.URLParam(r, "id")),
	)

	reply, err := h.sessions.Chat(ctx, user, chi.URLParam(r, "id"), req.Prompt, req.Context)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (h *Handler) HandleRecentSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := auth.Require(ctx, auth.RoleUser); err != nil {
		h.writeError(w, err)
		return
	}

	sessions, err := h.sessions.Recent(ctx, auth.GetUser(ctx))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) HandleSessionTurns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := auth.Require(ctx, auth.RoleUser); err != nil {
		h.writeError(w, err)
		return
	}

	sess, turns, err := h.sessions.Turns(ctx, auth.GetUser(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if turns == nil {
		turns = []*session.Turn{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": sess, "messages": turns})
}

// allow enforces the per-caller rate limit, writing the 429 itself.
func (h *Handler) allow(ctx context.Context, w http.ResponseWriter, user string) bool {
	allowed, err := h.limiter.Allow(ctx, user)
	if err != nil {
		h.logger.WithError(err).Warn("rate limit check failed, allowing call")
		return true
	}
	if !allowed {
		w.Header().Set("Retry-After", "60s")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":       "rate limit exceeded",
			"retry_after": "60s",
		})
		return false
	}
	return true
}

// writeError maps the error taxonomy to HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, auth.ErrPermissionDenied), errors.Is(err, session.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, assist.ErrEmptyPrompt):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, provider.ErrNotConfigured),
		errors.Is(err, provider.ErrInactive),
		errors.Is(err, provider.ErrMissingCredential),
		errors.Is(err, provider.ErrMissingBaseURL),
		errors.Is(err, provider.ErrMissingModel):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, assist.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, assist.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, assist.ErrInvalidCredential), errors.Is(err, assist.ErrInvalidResponse):
		status = http.StatusBadGateway
	default:
		var provErr *assist.ProviderError
		if errors.As(err, &provErr) {
			status = http.StatusBadGateway
		}
	}

	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error("request failed")
		writeJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
