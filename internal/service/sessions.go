// Package service holds the view state of the chat: the active conversation,
// the sidebar list and the page that ties them together.
package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
)

// IndexStore is the part of the session store the sidebar reads.
type IndexStore interface {
	List() []model.SessionIndexEntry
	Remove(ctx context.Context, sessionID string) error
	OnSessionsChanged(fn func(model.SessionEvent)) func()
}

// ConversationSessions keeps the sidebar list in sync with the store. It
// re-reads the index on every session event and on every read.
type ConversationSessions struct {
	store  IndexStore
	logger *logger.Logger

	// mu orders index reads with cache writes.
	mu       sync.Mutex
	sessions []model.SessionIndexEntry

	subMu  sync.Mutex
	subs   map[int]func([]model.SessionIndexEntry)
	nextID int

	unsubscribe func()
}

// NewConversationSessions loads the list and starts following store events.
func NewConversationSessions(store IndexStore, log *logger.Logger) *ConversationSessions {
	cs := &ConversationSessions{
		store:  store,
		logger: log.Named("sessions"),
		subs:   make(map[int]func([]model.SessionIndexEntry)),
	}
	cs.Refresh()
	cs.unsubscribe = store.OnSessionsChanged(func(ev model.SessionEvent) {
		cs.logger.Debug("session event, refreshing list",
			zap.String("type", string(ev.Type)),
			zap.String("session_id", ev.SessionID),
		)
		cs.Refresh()
	})
	return cs
}

// Sessions re-reads the index and returns it, most recent first. It does not
// notify subscribers.
func (cs *ConversationSessions) Sessions() []model.SessionIndexEntry {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.sessions = cs.store.List()
	return append([]model.SessionIndexEntry{}, cs.sessions...)
}

// Refresh re-reads the index and pushes it to subscribers. It is also the
// fallback when a client regains focus and may have missed events.
func (cs *ConversationSessions) Refresh() []model.SessionIndexEntry {
	cs.mu.Lock()
	cs.sessions = cs.store.List()
	snapshot := append([]model.SessionIndexEntry{}, cs.sessions...)
	cs.mu.Unlock()

	cs.notify(snapshot)
	return snapshot
}

// DeleteSession removes a session from the store and the cached list.
func (cs *ConversationSessions) DeleteSession(ctx context.Context, sessionID string) bool {
	if err := cs.store.Remove(ctx, sessionID); err != nil {
		cs.logger.Error("failed to delete session",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return false
	}

	// The index is read under mu so a refresh that read it before Remove
	// cannot overwrite this one.
	cs.mu.Lock()
	kept := []model.SessionIndexEntry{}
	for _, e := range cs.store.List() {
		if e.SessionID != sessionID {
			kept = append(kept, e)
		}
	}
	cs.sessions = kept
	snapshot := append([]model.SessionIndexEntry{}, kept...)
	cs.mu.Unlock()

	cs.notify(snapshot)
	return true
}

// Subscribe calls fn with every new list snapshot until the returned func is
// called.
func (cs *ConversationSessions) Subscribe(fn func([]model.SessionIndexEntry)) func() {
	cs.subMu.Lock()
	id := cs.nextID
	cs.nextID++
	cs.subs[id] = fn
	cs.subMu.Unlock()

	return func() {
		cs.subMu.Lock()
		delete(cs.subs, id)
		cs.subMu.Unlock()
	}
}

// Close stops following store events.
func (cs *ConversationSessions) Close() {
	if cs.unsubscribe != nil {
		cs.unsubscribe()
	}
}

func (cs *ConversationSessions) notify(list []model.SessionIndexEntry) {
	cs.subMu.Lock()
	fns := make([]func([]model.SessionIndexEntry), 0, len(cs.subs))
	for _, fn := range cs.subs {
		fns = append(fns, fn)
	}
	cs.subMu.Unlock()

	for _, fn := range fns {
		fn(append([]model.SessionIndexEntry{}, list...))
	}
}
