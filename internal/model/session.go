package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPreview is shown for sessions without a user turn yet.
const DefaultPreview = "New conversation"

// PreviewLength is the number of runes kept from the first user message.
const PreviewLength = 50

// ConversationSession is the persisted record of one client-side conversation.
// ConversationID is the backend's own id when the conversation-style contract
// is used; the two ids are not reconciled.
type ConversationSession struct {
	SessionID      string        `json:"session_id" yaml:"session_id"`
	ConversationID string        `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	Messages       []ChatMessage `json:"messages" yaml:"messages"`
	LastUpdated    time.Time     `json:"last_updated" yaml:"last_updated"`
}

// SessionIndexEntry is the sidebar row derived from a ConversationSession.
type SessionIndexEntry struct {
	SessionID    string    `json:"session_id" yaml:"session_id"`
	Preview      string    `json:"preview" yaml:"preview"`
	LastUpdated  time.Time `json:"last_updated" yaml:"last_updated"`
	MessageCount int       `json:"message_count" yaml:"message_count"`
}

// IndexEntry derives the sidebar entry for s.
func (s *ConversationSession) IndexEntry() SessionIndexEntry {
	return SessionIndexEntry{
		SessionID:    s.SessionID,
		Preview:      Preview(s.Messages),
		LastUpdated:  s.LastUpdated,
		MessageCount: len(s.Messages),
	}
}

// Preview returns the first PreviewLength runes of the first user message.
func Preview(messages []ChatMessage) string {
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		r := []rune(m.Content)
		if len(r) > PreviewLength {
			r = r[:PreviewLength]
		}
		if len(r) == 0 {
			break
		}
		return string(r)
	}
	return DefaultPreview
}

// NewSessionID returns a client-generated id of the form
// session_<epoch-ms>_<suffix>.
func NewSessionID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), suffix)
}

// ListSessionsResponse is the response for the sidebar list.
type ListSessionsResponse struct {
	Sessions []SessionIndexEntry `json:"sessions"`
	Total    int                 `json:"total"`
}
