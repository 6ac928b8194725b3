package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deputeti-ai/chat-gateway/internal/events"
	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
	"github.com/deputeti-ai/chat-gateway/pkg/metrics"
)

const (
	// SessionKeyPrefix prefixes the per-session message blob key.
	SessionKeyPrefix = "chat_session_"
	// IndexKey holds the JSON array of session index entries.
	IndexKey = "chat_sessions_list"
)

// SessionKey returns the KV key of a session blob.
func SessionKey(sessionID string) string {
	return SessionKeyPrefix + sessionID
}

// Sessions is the local session store: per-session message arrays plus the
// sidebar index, kept in sync on every mutation.
//
// Mutations are serialized so the blob and its index entry never diverge
// between goroutines; two overlapping Puts for one session are last write
// wins.
type Sessions struct {
	kv     KV
	bus    events.Bus
	logger *logger.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewSessions creates a session store over kv that publishes change events
// on bus.
func NewSessions(kv KV, bus events.Bus, log *logger.Logger) *Sessions {
	return &Sessions{
		kv:     kv,
		bus:    bus,
		logger: log.Named("store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the messages of a session. Absent or unreadable sessions yield
// an empty slice.
func (s *Sessions) Get(sessionID string) []model.ChatMessage {
	sess, ok := s.Load(sessionID)
	if !ok {
		return []model.ChatMessage{}
	}
	return sess.Messages
}

// Load returns the full session record.
func (s *Sessions) Load(sessionID string) (*model.ConversationSession, bool) {
	if sessionID == "" {
		return nil, false
	}

	data, err := s.kv.Get(SessionKey(sessionID))
	if errors.Is(err, ErrNotFound) {
		return nil, false
	}
	if err != nil {
		s.fail("get", sessionID, err)
		return nil, false
	}

	var sess model.ConversationSession
	if err := json.Unmarshal(data, &sess); err != nil {
		s.fail("get", sessionID, err)
		return nil, false
	}
	if sess.Messages == nil {
		sess.Messages = []model.ChatMessage{}
	}
	sess.SessionID = sessionID

	return &sess, true
}

// Put overwrites the session's messages, upserts its index entry and then
// notifies subscribers. A stored conversation id is preserved.
func (s *Sessions) Put(ctx context.Context, sessionID string, messages []model.ChatMessage) error {
	if sessionID == "" {
		return &Error{Op: "put", Err: errors.New("empty session id")}
	}

	s.mu.Lock()
	sess := &model.ConversationSession{
		SessionID:   sessionID,
		Messages:    append([]model.ChatMessage{}, messages...),
		LastUpdated: s.now(),
	}
	if prev, ok := s.Load(sessionID); ok {
		sess.ConversationID = prev.ConversationID
	}
	err := s.write(sess)
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.publish(ctx, model.EventSessionUpdated, sessionID)
	return nil
}

// SetConversationID records the backend conversation id for a session,
// creating an empty session record when none exists yet.
func (s *Sessions) SetConversationID(ctx context.Context, sessionID, conversationID string) error {
	if sessionID == "" {
		return &Error{Op: "put", Err: errors.New("empty session id")}
	}

	s.mu.Lock()
	sess, ok := s.Load(sessionID)
	if !ok {
		sess = &model.ConversationSession{SessionID: sessionID, Messages: []model.ChatMessage{}}
	}
	if sess.ConversationID == conversationID {
		s.mu.Unlock()
		return nil
	}
	sess.ConversationID = conversationID
	sess.LastUpdated = s.now()
	err := s.write(sess)
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.publish(ctx, model.EventSessionUpdated, sessionID)
	return nil
}

// write persists the blob and its index entry. Callers hold s.mu. An index
// that cannot be read is left as it is and nothing is written.
func (s *Sessions) write(sess *model.ConversationSession) error {
	entries, err := s.readIndex()
	if err != nil {
		return err
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return s.fail("put", sess.SessionID, err)
	}
	if err := s.kv.Set(SessionKey(sess.SessionID), data); err != nil {
		return s.fail("put", sess.SessionID, err)
	}

	entries = without(entries, sess.SessionID)
	entries = append(entries, sess.IndexEntry())
	sortEntries(entries)

	return s.writeIndex(entries)
}

// List returns the session index, most recently updated first. An unreadable
// index lists as empty.
func (s *Sessions) List() []model.SessionIndexEntry {
	entries, _ := s.readIndex()
	sortEntries(entries)
	return entries
}

// Remove deletes a session and its index entry. Removing an unknown session
// is a no-op.
func (s *Sessions) Remove(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	s.mu.Lock()
	entries, err := s.readIndex()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	_, existed := s.Load(sessionID)
	if err := s.kv.Delete(SessionKey(sessionID)); err != nil {
		s.mu.Unlock()
		return s.fail("remove", sessionID, err)
	}

	kept := without(entries, sessionID)
	if len(kept) != len(entries) {
		existed = true
		err = s.writeIndex(kept)
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if existed {
		s.publish(ctx, model.EventSessionDeleted, sessionID)
	}
	return nil
}

// OnSessionsChanged registers fn for every change to the index.
func (s *Sessions) OnSessionsChanged(fn func(model.SessionEvent)) func() {
	return s.bus.Subscribe(fn)
}

// Notify publishes an event that did not originate from a store write, such
// as the user starting a new conversation.
func (s *Sessions) Notify(ctx context.Context, eventType model.EventType, sessionID string) {
	s.publish(ctx, eventType, sessionID)
}

func (s *Sessions) publish(ctx context.Context, eventType model.EventType, sessionID string) {
	s.bus.Publish(ctx, model.SessionEvent{Type: eventType, SessionID: sessionID})
}

func (s *Sessions) readIndex() ([]model.SessionIndexEntry, error) {
	data, err := s.kv.Get(IndexKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail("index", IndexKey, err)
	}

	var entries []model.SessionIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, s.fail("index", IndexKey, err)
	}
	return entries, nil
}

func (s *Sessions) writeIndex(entries []model.SessionIndexEntry) error {
	if entries == nil {
		entries = []model.SessionIndexEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return s.fail("index", IndexKey, err)
	}
	if err := s.kv.Set(IndexKey, data); err != nil {
		return s.fail("index", IndexKey, err)
	}
	return nil
}

func (s *Sessions) fail(op, key string, err error) error {
	metrics.RecordStoreError(op)
	s.logger.Error("session store operation failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
	return &Error{Op: op, Key: key, Err: err}
}

func without(entries []model.SessionIndexEntry, sessionID string) []model.SessionIndexEntry {
	out := make([]model.SessionIndexEntry, 0, len(entries))
	for _, e := range entries {
		if e.SessionID != sessionID {
			out = append(out, e)
		}
	}
	return out
}

func sortEntries(entries []model.SessionIndexEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastUpdated.After(entries[j].LastUpdated)
	})
}
