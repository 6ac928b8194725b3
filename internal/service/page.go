package service

import (
	"context"
	"strings"

	"github.com/deputeti-ai/chat-gateway/internal/chat"
	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
)

// Notifier publishes session events that are not store writes.
type Notifier interface {
	Notify(ctx context.Context, eventType model.EventType, sessionID string)
}

// PageStore is what the chat page needs from the session store.
type PageStore interface {
	SessionReader
	Notifier
}

// Page is the chat page: one active conversation plus the shared sidebar.
type Page struct {
	agent    *AgentSession
	sessions *ConversationSessions
	store    PageStore
}

// NewPage opens sessionID, or a new conversation when it is empty.
func NewPage(client Sender, store PageStore, sessions *ConversationSessions, sessionID string, log *logger.Logger) *Page {
	return &Page{
		agent:    NewAgentSession(client, store, sessionID, log),
		sessions: sessions,
		store:    store,
	}
}

func (p *Page) Agent() *AgentSession { return p.agent }

func (p *Page) Sessions() *ConversationSessions { return p.sessions }

// Submit sends text. The first submit of a new conversation assigns the
// session id and announces the conversation.
func (p *Page) Submit(ctx context.Context, text string) (*model.ChatResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, chat.ErrEmptyMessage
	}
	if p.agent.SessionID() == "" {
		id := model.NewSessionID()
		p.agent.Adopt(id)
		p.store.Notify(ctx, model.EventConversationCreated, id)
	}
	return p.agent.SendMessage(ctx, text)
}

// NewConversation leaves the current session and starts an empty one.
func (p *Page) NewConversation(ctx context.Context) {
	p.agent.Reset()
	p.store.Notify(ctx, model.EventConversationCreated, "")
}

// Open switches to a stored session.
func (p *Page) Open(sessionID string) {
	p.agent.Adopt(sessionID)
	p.agent.Load()
}

// DeleteSession deletes any session. Deleting the open one resets the page to
// a new conversation.
func (p *Page) DeleteSession(ctx context.Context, sessionID string) bool {
	ok := p.sessions.DeleteSession(ctx, sessionID)
	if ok && sessionID == p.agent.SessionID() {
		p.agent.Reset()
	}
	return ok
}
