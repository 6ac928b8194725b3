package model

import (
	"time"
)

// EventType represents the kind of session change notification.
type EventType string

const (
	EventConversationCreated EventType = "conversationCreated"
	EventSessionUpdated      EventType = "sessionUpdated"
	EventSessionDeleted      EventType = "sessionDeleted"
)

// SessionEvent is broadcast whenever the session index may have changed.
type SessionEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorEvent is sent to SSE subscribers when something went wrong.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent keeps SSE connections alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
