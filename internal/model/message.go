// Package model defines data structures for the chat gateway.
package model

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the roles the backend accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ChatMessage is one turn of a conversation. Order within a conversation is
// significant and replayed verbatim to the backend.
type ChatMessage struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// UserMessage builds a user turn.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant turn.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// ChatResponse is the outcome of one send. Failures are reported here rather
// than as errors so the view can render them as transcript entries.
type ChatResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`

	// LoginRequired is set when the stored API key was rejected and cleared.
	LoginRequired bool `json:"login_required,omitempty"`
}

// SendMessageRequest is the request body for posting a chat turn.
type SendMessageRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content"`
}

// SendMessageResponse is returned after a chat turn completes.
type SendMessageResponse struct {
	SessionID string        `json:"session_id"`
	Messages  []ChatMessage `json:"messages"`
	ChatResponse

	// LoginURL is set together with LoginRequired.
	LoginURL string `json:"login_url,omitempty"`
}
