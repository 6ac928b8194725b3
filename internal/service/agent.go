package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/deputeti-ai/chat-gateway/internal/chat"
	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
)

// RequestFailedMessage prefixes errors the chat client could not classify.
const RequestFailedMessage = "Request failed. Please check your API key and try again."

// ErrSendInFlight is returned when a send is already running for a session.
var ErrSendInFlight = errors.New("a message is already being sent for this session")

// State is the send state of a chat view.
type State int

const (
	StateIdle State = iota
	StateSending
)

func (s State) String() string {
	if s == StateSending {
		return "sending"
	}
	return "idle"
}

// Sender sends chat turns. *chat.Client implements it.
type Sender interface {
	SendMessage(ctx context.Context, text, sessionID string, history []model.ChatMessage) (*model.ChatResponse, error)
	PersistFailure(ctx context.Context, sessionID string, history []model.ChatMessage, text, errText string) error
}

// SessionReader is the part of the session store a chat view reads.
type SessionReader interface {
	Get(sessionID string) []model.ChatMessage
	Remove(ctx context.Context, sessionID string) error
}

// AgentSession is the state of one chat view: Idle, then Sending while a turn
// is in flight, then Idle again whatever the outcome. The user message is
// shown before the network call and is never removed on failure.
type AgentSession struct {
	client Sender
	store  SessionReader
	logger *logger.Logger

	mu        sync.Mutex
	sessionID string
	messages  []model.ChatMessage
	state     State
	err       string
}

// NewAgentSession creates a view for sessionID. An empty id is a new
// conversation.
func NewAgentSession(client Sender, store SessionReader, sessionID string, log *logger.Logger) *AgentSession {
	a := &AgentSession{
		client:    client,
		store:     store,
		logger:    log.Named("agent"),
		sessionID: sessionID,
		messages:  []model.ChatMessage{},
	}
	a.Load()
	return a
}

func (a *AgentSession) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

func (a *AgentSession) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Messages returns a copy of the transcript.
func (a *AgentSession) Messages() []model.ChatMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.ChatMessage{}, a.messages...)
}

// Err returns the last send error, cleared by the next send.
func (a *AgentSession) Err() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Load replaces the transcript with the stored one.
func (a *AgentSession) Load() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sessionID == "" {
		a.messages = []model.ChatMessage{}
		return
	}
	a.messages = a.store.Get(a.sessionID)
}

// Adopt makes id the active session without touching the transcript. Used
// when a new conversation receives its id on first send.
func (a *AgentSession) Adopt(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionID = id
}

// Reset switches to a new, empty conversation.
func (a *AgentSession) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionID = ""
	a.messages = []model.ChatMessage{}
	a.err = ""
}

// Delete removes the active session from the store and resets the view.
func (a *AgentSession) Delete(ctx context.Context) error {
	id := a.SessionID()
	if id != "" {
		if err := a.store.Remove(ctx, id); err != nil {
			return err
		}
	}
	a.Reset()
	return nil
}

// SendMessage runs one turn. Backend failures are returned in the response
// and appended to the transcript as an assistant message.
func (a *AgentSession) SendMessage(ctx context.Context, text string) (*model.ChatResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, chat.ErrEmptyMessage
	}

	a.mu.Lock()
	if a.state == StateSending {
		a.mu.Unlock()
		return nil, ErrSendInFlight
	}
	if a.sessionID == "" {
		a.mu.Unlock()
		return nil, errors.New("no active session")
	}
	sessionID := a.sessionID
	history := append([]model.ChatMessage{}, a.messages...)
	a.messages = append(a.messages, model.UserMessage(text))
	a.state = StateSending
	a.err = ""
	a.mu.Unlock()

	resp, err := a.client.SendMessage(ctx, text, sessionID, history)
	if err != nil {
		resp = &model.ChatResponse{Success: false, Error: RequestFailedMessage + " " + err.Error()}
	}

	a.mu.Lock()
	if resp.Success {
		a.messages = append(a.messages, model.AssistantMessage(resp.Response))
	} else {
		a.messages = append(a.messages, model.AssistantMessage(resp.Error))
		a.err = resp.Error
	}
	a.state = StateIdle
	a.mu.Unlock()

	if !resp.Success {
		if perr := a.client.PersistFailure(ctx, sessionID, history, text, resp.Error); perr != nil {
			a.logger.Warn("failed turn not persisted",
				zap.String("session_id", sessionID),
				zap.Error(perr),
			)
		}
	}

	return resp, nil
}
