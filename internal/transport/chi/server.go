// Package chi exposes the conversational matching pipeline over HTTP:
// a server-sent-events chat endpoint plus conversation management and
// operational routes.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/domain"
	"github.com/kailas-cloud/tripmatch/internal/version"
	conversationuc "github.com/kailas-cloud/tripmatch/internal/usecase/conversation"
	healthuc "github.com/kailas-cloud/tripmatch/internal/usecase/health"
	turnuc "github.com/kailas-cloud/tripmatch/internal/usecase/turn"
)

const maxMessageBytes = 8 << 10

// Refresher reloads the catalog snapshot from the backing store.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error response codes.
const (
	CodeBadRequest            = "bad_request"
	CodeValidationFailed      = "validation_failed"
	CodeCapabilityUnavailable = "capability_unavailable"
	CodeStreamingUnsupported  = "streaming_unsupported"
	CodeInternalError         = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	turns         *turnuc.Service
	conversations *conversationuc.Service
	refresher     Refresher
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. refresher may be nil when the
// catalog has no backing store to reload from.
func NewServer(
	turns *turnuc.Service,
	conversations *conversationuc.Service,
	refresher Refresher,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		turns:         turns,
		conversations: conversations,
		refresher:     refresher,
		health:        health,
		logger:        logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidPreferenceKey, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrCapabilityUnavailable, http.StatusBadGateway, CodeCapabilityUnavailable),
		sentinelHandler(domain.ErrCatalogUnavailable, http.StatusServiceUnavailable, CodeCapabilityUnavailable),
	}
	return s
}

// Routes registers all API routes on a router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.Chat)
		r.Get("/welcome", s.Welcome)
		r.Post("/catalog/refresh", s.RefreshCatalog)
		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Delete("/memory", s.ClearMemory)
			r.Get("/preferences", s.GetPreferences)
			r.Put("/preferences", s.PutPreference)
			r.Delete("/preferences", s.ClearPreferences)
		})
	})
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// chatRequest is the POST /v1/chat body.
type chatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Message        string `json:"message"`
}

// Chat handles POST /v1/chat. The response is a server-sent-event
// stream: one "offers" event with the structured shortlist, "content"
// events carrying reply fragments, and a terminal "end" or "error"
// event.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "message is required")
		return
	}

	stream, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeStreamingUnsupported, "streaming unsupported")
		return
	}

	result, runErr := s.turns.Run(r.Context(), turnuc.Request{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Message:        req.Message,
	}, stream)

	// Headers are already on the wire; all outcomes are SSE events now.
	if runErr != nil {
		s.logger.Warn("Chat turn ended with error", zap.Error(runErr))
		stream.Error(safeStreamMessage(runErr))
		return
	}
	stream.End(result.ConversationID)
}

// ClearMemory handles DELETE /v1/conversations/{id}/memory.
func (s *Server) ClearMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.conversations.Clear(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "conversation_id": id})
}

// GetPreferences handles GET /v1/conversations/{id}/preferences.
func (s *Server) GetPreferences(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.conversations.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"preferences":     state.Preferences,
	})
}

// preferenceRequest is the PUT /v1/conversations/{id}/preferences body.
type preferenceRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// PutPreference handles PUT /v1/conversations/{id}/preferences. It sets
// one preference key explicitly; an empty value removes the key.
func (s *Server) PutPreference(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	unlock := s.conversations.Lock(id)
	defer unlock()

	state, err := s.conversations.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if err := state.Preferences.Set(req.Key, req.Value); err != nil {
		s.handleDomainError(w, err)
		return
	}
	if err := s.conversations.Put(r.Context(), state); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"preferences":     state.Preferences,
	})
}

// ClearPreferences handles DELETE /v1/conversations/{id}/preferences.
// History and last-ranked state survive; only preferences reset.
func (s *Server) ClearPreferences(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	unlock := s.conversations.Lock(id)
	defer unlock()

	state, err := s.conversations.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	state.Preferences = make(domain.PreferenceSet)
	if err := s.conversations.Put(r.Context(), state); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "conversation_id": id})
}

// RefreshCatalog handles POST /v1/catalog/refresh: reload the offer
// snapshot atomically from the store. In-flight turns keep the snapshot
// they started with.
func (s *Server) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "noop"})
		return
	}
	if err := s.refresher.Refresh(r.Context()); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// Welcome handles GET /v1/welcome.
func (s *Server) Welcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Hi! Tell me where you would like to travel, for how long, and what you enjoy, and I will match you with trips.",
		"version": version.Version,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client
// without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidPreferenceKey,
		domain.ErrCapabilityUnavailable,
		domain.ErrCatalogUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// safeStreamMessage maps a turn error to the terminal SSE error text.
func safeStreamMessage(err error) string {
	if errors.Is(err, context.Canceled) {
		return "client disconnected"
	}
	return "reply stream interrupted"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
