package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
	"github.com/deputeti-ai/chat-gateway/pkg/metrics"
	"github.com/deputeti-ai/chat-gateway/pkg/tracing"
)

// DefaultProfile is the backend profile conversations are created under.
const DefaultProfile = "eu_law"

// ConversationConfig configures the conversation contract.
type ConversationConfig struct {
	BaseURL    string
	Username   string
	Password   string
	Profile    string
	HTTPClient *http.Client
}

// ConversationContract logs in for a bearer token, keeps one backend
// conversation per session and posts only the new message text.
type ConversationContract struct {
	baseURL string
	cfg     ConversationConfig
	http    *http.Client
	creds   Credentials
	logger  *logger.Logger

	loginMu sync.Mutex
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

type createConversationRequest struct {
	Title   string `json:"title"`
	Profile string `json:"profile,omitempty"`
}

type conversationResponse struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

type postMessageRequest struct {
	Content string `json:"content"`
}

type postMessageResponse struct {
	UserMessage      *messageBody `json:"user_message"`
	AssistantMessage *messageBody `json:"assistant_message"`
}

type messageBody struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content"`
}

// NewConversationContract creates the conversation contract.
func NewConversationContract(cfg ConversationConfig, creds Credentials, log *logger.Logger) *ConversationContract {
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient(DefaultTimeout)
	}
	return &ConversationContract{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
		http:    cfg.HTTPClient,
		creds:   creds,
		logger:  log.Named("conversation"),
	}
}

func (c *ConversationContract) Name() string { return ContractConversation }

// Send posts turn.Text into the session's backend conversation. A rejected
// token is cleared and the whole exchange retried once after a fresh login.
func (c *ConversationContract) Send(ctx context.Context, turn *Turn) (*Reply, error) {
	ctx, span := tracing.Tracer().Start(ctx, "backend.conversation.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", turn.SessionID),
		attribute.String("conversation_id", turn.ConversationID),
	)

	start := time.Now()
	reply, err := c.sendWithReauth(ctx, turn)
	if err != nil {
		metrics.RecordBackend(ContractConversation, "error", time.Since(start).Seconds())
		span.RecordError(err)
		return nil, err
	}
	metrics.RecordBackend(ContractConversation, "ok", time.Since(start).Seconds())
	return reply, nil
}

func (c *ConversationContract) sendWithReauth(ctx context.Context, turn *Turn) (*Reply, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	reply, conversationID, err := c.send(ctx, token, turn)
	if !errors.Is(err, ErrUnauthorized) {
		return reply, err
	}

	c.logger.Info("bearer token rejected, logging in again", zap.String("session_id", turn.SessionID))
	c.creds.ClearToken()
	token, err = c.login(ctx)
	if err != nil {
		return nil, err
	}

	retry := *turn
	if conversationID != "" {
		retry.ConversationID = conversationID
	}
	reply, _, err = c.send(ctx, token, &retry)
	return reply, err
}

// send returns the resolved conversation id even when posting fails, so a
// retry can reuse it.
func (c *ConversationContract) send(ctx context.Context, token string, turn *Turn) (*Reply, string, error) {
	conversationID, err := c.resolveConversation(ctx, token, turn)
	if err != nil {
		return nil, "", err
	}

	var resp postMessageResponse
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, token, postMessageRequest{Content: turn.Text}, &resp); err != nil {
		return nil, conversationID, err
	}
	if resp.AssistantMessage == nil || resp.AssistantMessage.Content == "" {
		return nil, conversationID, ErrNoAssistantMessage
	}

	return &Reply{
		Content:        resp.AssistantMessage.Content,
		ConversationID: conversationID,
	}, conversationID, nil
}

// resolveConversation returns the session's backend conversation, creating
// one when none is known or the known one has disappeared.
func (c *ConversationContract) resolveConversation(ctx context.Context, token string, turn *Turn) (string, error) {
	if turn.ConversationID != "" {
		var conv conversationResponse
		path := "/api/v1/conversations/" + url.PathEscape(turn.ConversationID)
		err := c.do(ctx, http.MethodGet, path, token, nil, &conv)
		if err == nil {
			return turn.ConversationID, nil
		}
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.Status != http.StatusNotFound {
			return "", err
		}
		c.logger.Info("backend conversation gone, creating a new one",
			zap.String("session_id", turn.SessionID),
			zap.String("conversation_id", turn.ConversationID),
		)
	}

	var conv conversationResponse
	req := createConversationRequest{Title: conversationTitle(turn.Text), Profile: c.cfg.Profile}
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations", token, req, &conv); err != nil {
		return "", err
	}
	if conv.ID == "" {
		return "", fmt.Errorf("%w: conversation created without id", ErrNoAssistantMessage)
	}
	return conv.ID, nil
}

// token returns the stored token unless it is missing or expired.
func (c *ConversationContract) token(ctx context.Context) (string, error) {
	if t := c.creds.Token(); t != "" && !tokenExpired(t, time.Now()) {
		return t, nil
	}
	return c.login(ctx)
}

func (c *ConversationContract) login(ctx context.Context) (string, error) {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	// Another request may have logged in while we waited.
	if t := c.creds.Token(); t != "" && !tokenExpired(t, time.Now()) {
		return t, nil
	}
	if c.cfg.Username == "" {
		return "", errors.New("conversation contract requires a backend username")
	}

	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Username: c.cfg.Username,
		Password: c.cfg.Password,
	}, &resp)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Status == http.StatusUnauthorized {
			statusErr.LoginRequired = true
		}
		return "", err
	}
	if resp.AccessToken == "" {
		return "", errors.New("login response carried no access token")
	}

	if err := c.creds.SetToken(resp.AccessToken); err != nil {
		c.logger.Warn("failed to persist bearer token", zap.Error(err))
	}
	c.logger.Info("logged in to backend")
	return resp.AccessToken, nil
}

func (c *ConversationContract) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &TransportError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &StatusError{Status: resp.StatusCode, Body: data, Err: ErrUnauthorized}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{Status: resp.StatusCode, Body: data}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrNoAssistantMessage, err)
	}
	return nil
}

// tokenExpired reads the exp claim without verifying the signature; the
// backend is the one that verifies. Opaque tokens never expire locally.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

func conversationTitle(text string) string {
	return model.Preview([]model.ChatMessage{model.UserMessage(text)})
}
