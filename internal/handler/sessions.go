// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/deputeti-ai/chat-gateway/internal/middleware"
	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/internal/service"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
)

// SessionStore is the part of the session store the sessions endpoints read.
type SessionStore interface {
	Load(sessionID string) (*model.ConversationSession, bool)
	service.Notifier
}

// SessionsHandler handles the sidebar endpoints.
type SessionsHandler struct {
	store    SessionStore
	sessions *service.ConversationSessions
	logger   *logger.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(store SessionStore, sessions *service.ConversationSessions, log *logger.Logger) *SessionsHandler {
	return &SessionsHandler{
		store:    store,
		sessions: sessions,
		logger:   log,
	}
}

// List handles GET /api/v1/sessions
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse(h.sessions.Sessions()))
}

// Create handles POST /api/v1/sessions. No session is stored until the first
// message; the client receives a null id and every sidebar is told a new
// conversation started.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.store.Notify(r.Context(), model.EventConversationCreated, "")
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": nil,
	})
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, ok := h.store.Load(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// Delete handles DELETE /api/v1/sessions/{id}
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.sessions.DeleteSession(r.Context(), sessionID) {
		h.logger.Error("failed to delete session", zap.String("session_id", sessionID))
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles POST /api/v1/sessions/refresh, used by clients that regain
// focus and may have missed events.
func (h *SessionsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse(h.sessions.Refresh()))
}
