package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/deputeti-ai/chat-gateway/internal/chat"
	"github.com/deputeti-ai/chat-gateway/internal/middleware"
	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/internal/service"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
)

// ChatHandler runs chat turns over HTTP. Each request builds a short-lived
// AgentSession for the target session; the Guard keeps overlapping requests
// for one session from interleaving.
type ChatHandler struct {
	client service.Sender
	store  service.PageStore
	guard  *service.Guard
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(client service.Sender, store service.PageStore, guard *service.Guard, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		client: client,
		store:  store,
		guard:  guard,
		logger: log,
	}
}

// Send handles POST /api/v1/chat. Without a session_id a new conversation is
// started and its generated id returned.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = model.NewSessionID()
		h.store.Notify(r.Context(), model.EventConversationCreated, sessionID)
	} else if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.send(w, r, sessionID, req.Content)
}

// SendToSession handles POST /api/v1/sessions/{id}/messages
func (h *ChatHandler) SendToSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.send(w, r, sessionID, req.Content)
}

func (h *ChatHandler) send(w http.ResponseWriter, r *http.Request, sessionID, content string) {
	ctx := r.Context()
	log := h.logger.WithContext(middleware.GetCorrelationID(ctx), sessionID)

	release, err := h.guard.Acquire(sessionID)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	defer release()

	agent := service.NewAgentSession(h.client, h.store, sessionID, log)

	resp, err := agent.SendMessage(ctx, content)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, service.ErrSendInFlight):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.Error("chat turn failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	out := &model.SendMessageResponse{
		SessionID:    sessionID,
		Messages:     agent.Messages(),
		ChatResponse: *resp,
	}

	if resp.LoginRequired {
		out.LoginURL = LoginURL
		writeJSON(w, http.StatusUnauthorized, out)
		return
	}

	if !resp.Success {
		log.Warn("chat turn returned an error", zap.String("error", resp.Error))
	}

	writeJSON(w, http.StatusOK, out)
}
