package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
	"github.com/deputeti-ai/chat-gateway/pkg/metrics"
	"github.com/deputeti-ai/chat-gateway/pkg/tracing"
)

// DefaultModel is the backend model of the completion contract.
const DefaultModel = "eu-law-rag"

// CompletionConfig configures the completion contract.
type CompletionConfig struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// CompletionContract posts the whole history to {base}/v1/chat/completions
// with the stored API key in X-API-Key.
type CompletionContract struct {
	client *openai.Client
	model  string
	creds  Credentials
	logger *logger.Logger
}

// NewCompletionContract creates the completion contract.
func NewCompletionContract(cfg CompletionConfig, creds Credentials, log *logger.Logger) *CompletionContract {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	base := cfg.HTTPClient
	if base == nil {
		base = NewHTTPClient(DefaultTimeout)
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	oc := openai.DefaultConfig("")
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/v1"
	oc.HTTPClient = &http.Client{
		Timeout:   base.Timeout,
		Transport: &apiKeyTransport{base: transport, creds: creds},
	}

	return &CompletionContract{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		creds:  creds,
		logger: log.Named("completion"),
	}
}

func (c *CompletionContract) Name() string { return ContractCompletion }

// Send submits the history plus the new user turn.
func (c *CompletionContract) Send(ctx context.Context, turn *Turn) (*Reply, error) {
	ctx, span := tracing.Tracer().Start(ctx, "backend.completion.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", turn.SessionID),
		attribute.Int("history_length", len(turn.History)),
	)

	messages := make([]openai.ChatCompletionMessage, 0, len(turn.History)+1)
	for _, m := range append(append([]model.ChatMessage{}, turn.History...), model.UserMessage(turn.Text)) {
		if !m.Role.Valid() || m.Content == "" {
			return nil, ErrInvalidMessage
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	capture := &responseCapture{}
	ctx = context.WithValue(ctx, captureKey{}, capture)

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		err = c.classify(capture, err)
		metrics.RecordBackend(ContractCompletion, "error", time.Since(start).Seconds())
		span.RecordError(err)
		return nil, err
	}
	metrics.RecordBackend(ContractCompletion, "ok", time.Since(start).Seconds())

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	if content == "" {
		return nil, ErrNoAssistantMessage
	}

	c.logger.Debug("completion received",
		zap.String("session_id", turn.SessionID),
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return &Reply{
		Content:        content,
		ConversationID: turn.ConversationID,
		Model:          resp.Model,
	}, nil
}

func (c *CompletionContract) classify(capture *responseCapture, err error) error {
	status, body := capture.get()

	switch {
	case status == http.StatusUnauthorized:
		c.creds.ClearAPIKey()
		c.logger.Warn("api key rejected, cleared stored key")
		return &StatusError{Status: status, Body: body, Err: ErrUnauthorized, LoginRequired: true}
	case status >= http.StatusMultipleChoices:
		return &StatusError{Status: status, Body: body, Err: err}
	case status != 0:
		// 2xx that go-openai could not decode.
		return fmt.Errorf("%w: %v", ErrNoAssistantMessage, err)
	default:
		return &TransportError{Err: err}
	}
}

type captureKey struct{}

// responseCapture records the status and body of a non-2xx response so the
// raw error body survives go-openai's own error decoding.
type responseCapture struct {
	mu     sync.Mutex
	status int
	body   []byte
}

func (r *responseCapture) set(status int, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.body = body
}

func (r *responseCapture) get() (int, []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.body
}

// apiKeyTransport replaces the bearer header go-openai sets with X-API-Key.
type apiKeyTransport struct {
	base  http.RoundTripper
	creds Credentials
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Del("Authorization")
	if key := t.creds.APIKey(); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	capture, _ := req.Context().Value(captureKey{}).(*responseCapture)
	if capture == nil {
		return resp, nil
	}
	if resp.StatusCode < http.StatusMultipleChoices {
		capture.set(resp.StatusCode, nil)
		return resp, nil
	}

	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	capture.set(resp.StatusCode, body)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
