package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// FallbackErrorMessage is used when nothing better can be extracted.
const FallbackErrorMessage = "Failed to send message"

// NoResponseMessage is shown when the backend answered without a reply.
const NoResponseMessage = "No response from assistant"

// ExtractErrorMessage pulls a human readable message out of an error body.
// It checks, in order: a plain string body, error.message, message, detail,
// error, and finally the whole body re-encoded. Without a usable body the
// error text of err is used, then FallbackErrorMessage.
func ExtractErrorMessage(body []byte, err error) string {
	if msg := messageFromBody(body); msg != "" {
		return msg
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return FallbackErrorMessage
}

func messageFromBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var data any
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return string(trimmed)
	}

	switch v := data.(type) {
	case string:
		return v
	case map[string]any:
		if inner, ok := v["error"].(map[string]any); ok {
			if msg, ok := inner["message"]; ok && present(msg) {
				return stringify(msg)
			}
		}
		for _, key := range []string{"message", "detail", "error"} {
			if val, ok := v[key]; ok && present(val) {
				return stringify(val)
			}
		}
		return stringify(v)
	case nil:
		return ""
	default:
		return stringify(v)
	}
}

// present mirrors a truthiness check on decoded JSON values.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	default:
		return true
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}

// ErrorMessage converts any Send error into the text shown to the user.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if msg := messageFromBody(statusErr.Body); msg != "" {
			return msg
		}
		return fmt.Sprintf("Request failed with status code %d", statusErr.Status)
	}
	if errors.Is(err, ErrNoAssistantMessage) {
		return NoResponseMessage
	}
	if errors.Is(err, ErrInvalidMessage) {
		return "Invalid message format"
	}
	return ExtractErrorMessage(nil, err)
}

// LoginRequired reports whether err asks the user to supply a new credential.
func LoginRequired(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.LoginRequired
}
