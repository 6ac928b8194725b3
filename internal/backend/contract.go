// Package backend speaks to the external legal-assistant service. Exactly one
// Contract is active at a time, selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
)

// DefaultTimeout bounds a single backend round trip.
const DefaultTimeout = 2 * time.Minute

// Contract names.
const (
	ContractCompletion   = "completion"
	ContractConversation = "conversation"
)

// Turn is one outbound user message with the history it follows.
type Turn struct {
	SessionID      string
	ConversationID string
	Text           string
	History        []model.ChatMessage
}

// Reply is the assistant answer to a Turn.
type Reply struct {
	Content        string
	ConversationID string
	Model          string
}

// Contract is a backend request/response shape.
type Contract interface {
	Name() string
	Send(ctx context.Context, turn *Turn) (*Reply, error)
}

// Credentials gives contracts access to the stored API key and token.
type Credentials interface {
	APIKey() string
	ClearAPIKey()
	Token() string
	SetToken(token string) error
	ClearToken()
}

var (
	// ErrUnauthorized is wrapped by StatusError for 401 responses.
	ErrUnauthorized = errors.New("credential rejected by backend")
	// ErrNoAssistantMessage means a 2xx response carried no reply.
	ErrNoAssistantMessage = errors.New("no assistant message")
	// ErrInvalidMessage means a turn could not be encoded for the backend.
	ErrInvalidMessage = errors.New("invalid message format")
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	Status int
	Body   []byte
	Err    error

	// LoginRequired is set when the caller must obtain a new credential.
	LoginRequired bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, ExtractErrorMessage(e.Body, nil))
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// TransportError is a failure to complete the HTTP exchange at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "Request failed"
	}
	return "Request failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Config selects and configures a contract.
type Config struct {
	Contract string
	BaseURL  string
	Timeout  time.Duration

	// Completion contract.
	Model string

	// Conversation contract.
	Username string
	Password string
	Profile  string
}

// New builds the configured contract.
func New(cfg Config, creds Credentials, log *logger.Logger) (Contract, error) {
	httpClient := NewHTTPClient(cfg.Timeout)

	switch cfg.Contract {
	case ContractCompletion, "":
		return NewCompletionContract(CompletionConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			HTTPClient: httpClient,
		}, creds, log), nil
	case ContractConversation:
		return NewConversationContract(ConversationConfig{
			BaseURL:    cfg.BaseURL,
			Username:   cfg.Username,
			Password:   cfg.Password,
			Profile:    cfg.Profile,
			HTTPClient: httpClient,
		}, creds, log), nil
	default:
		return nil, fmt.Errorf("unknown backend contract %q", cfg.Contract)
	}
}

// NewHTTPClient returns the client used for backend calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
