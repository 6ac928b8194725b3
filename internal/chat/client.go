// Package chat sends user turns to the backend and records the outcome in
// the session store.
package chat

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/deputeti-ai/chat-gateway/internal/backend"
	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/internal/translation"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
	"github.com/deputeti-ai/chat-gateway/pkg/metrics"
	"github.com/deputeti-ai/chat-gateway/pkg/tracing"
)

// ErrEmptyMessage is returned for blank input. Nothing is sent or stored.
var ErrEmptyMessage = errors.New("message is empty")

// Sessions is the part of the session store the client writes to.
type Sessions interface {
	Load(sessionID string) (*model.ConversationSession, bool)
	Put(ctx context.Context, sessionID string, messages []model.ChatMessage) error
	SetConversationID(ctx context.Context, sessionID, conversationID string) error
}

// Client is the single seam between views and the backend contract.
type Client struct {
	contract backend.Contract
	sessions Sessions
	pass     *translation.Pass
	logger   *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTranslation attaches a translation pass. A nil pass disables it.
func WithTranslation(p *translation.Pass) Option {
	return func(c *Client) {
		c.pass = p
	}
}

// NewClient creates a chat client.
func NewClient(contract backend.Contract, sessions Sessions, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		contract: contract,
		sessions: sessions,
		logger:   log.Named("chat"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Contract returns the active backend contract name.
func (c *Client) Contract() string {
	return c.contract.Name()
}

// SendMessage sends text as the next user turn after history. Backend and
// transport failures come back as a ChatResponse with Success false; the
// only error is ErrEmptyMessage.
//
// On success the session is stored as history + user + assistant. Failed
// turns are not stored here; see PersistFailure.
func (c *Client) SendMessage(ctx context.Context, text, sessionID string, history []model.ChatMessage) (*model.ChatResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	ctx, span := tracing.Tracer().Start(ctx, "chat.send_message")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("contract", c.contract.Name()),
	)

	log := c.logger.With(zap.String("session_id", sessionID))

	var conversationID string
	if sess, ok := c.sessions.Load(sessionID); ok {
		conversationID = sess.ConversationID
	}

	outbound, albanian := c.pass.Outbound(ctx, text)
	turn := &backend.Turn{
		SessionID:      sessionID,
		ConversationID: conversationID,
		Text:           outbound,
		History:        c.pass.History(ctx, history),
	}

	reply, err := c.contract.Send(ctx, turn)
	if err != nil {
		msg := backend.ErrorMessage(err)
		span.SetStatus(codes.Error, msg)
		metrics.RecordMessage(string(model.RoleUser), "failed")
		log.Warn("send failed",
			zap.String("contract", c.contract.Name()),
			zap.String("message", msg),
			zap.Error(err),
		)
		return &model.ChatResponse{
			Success:       false,
			Error:         msg,
			LoginRequired: backend.LoginRequired(err),
		}, nil
	}

	content := c.pass.Inbound(ctx, reply.Content, albanian)

	messages := make([]model.ChatMessage, 0, len(history)+2)
	messages = append(messages, history...)
	messages = append(messages, model.UserMessage(text), model.AssistantMessage(content))
	if err := c.sessions.Put(ctx, sessionID, messages); err != nil {
		log.Warn("failed to persist conversation", zap.Error(err))
	}
	if reply.ConversationID != "" && reply.ConversationID != conversationID {
		if err := c.sessions.SetConversationID(ctx, sessionID, reply.ConversationID); err != nil {
			log.Warn("failed to persist conversation id", zap.Error(err))
		}
	}

	metrics.RecordMessage(string(model.RoleUser), "ok")
	metrics.RecordMessage(string(model.RoleAssistant), "ok")

	return &model.ChatResponse{Success: true, Response: content}, nil
}

// PersistFailure stores history + user(text) + assistant(errText) so a failed
// turn stays visible in the transcript. Storage errors are logged and
// returned; callers do not surface them.
func (c *Client) PersistFailure(ctx context.Context, sessionID string, history []model.ChatMessage, text, errText string) error {
	messages := make([]model.ChatMessage, 0, len(history)+2)
	messages = append(messages, history...)
	messages = append(messages, model.UserMessage(text), model.AssistantMessage(errText))

	metrics.RecordMessage(string(model.RoleAssistant), "error_turn")
	if err := c.sessions.Put(ctx, sessionID, messages); err != nil {
		c.logger.Warn("failed to persist failed turn",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
