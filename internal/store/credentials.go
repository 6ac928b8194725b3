package store

import (
	"errors"

	"go.uber.org/zap"

	"github.com/deputeti-ai/chat-gateway/pkg/logger"
)

const (
	// APIKeyKey stores the X-API-Key credential of the completion contract.
	APIKeyKey = "api_key"
	// TokenKey stores the bearer token of the conversation contract.
	TokenKey = "jwt_token"
)

// Credentials keeps backend credentials next to the sessions.
type Credentials struct {
	kv     KV
	logger *logger.Logger
}

// NewCredentials creates a credential store over kv.
func NewCredentials(kv KV, log *logger.Logger) *Credentials {
	return &Credentials{kv: kv, logger: log.Named("credentials")}
}

// APIKey returns the stored API key or "".
func (c *Credentials) APIKey() string { return c.get(APIKeyKey) }

// SetAPIKey stores the API key.
func (c *Credentials) SetAPIKey(key string) error { return c.set(APIKeyKey, key) }

// ClearAPIKey forgets the API key.
func (c *Credentials) ClearAPIKey() { c.clear(APIKeyKey) }

// SeedAPIKey stores key only when no API key is stored yet.
func (c *Credentials) SeedAPIKey(key string) error {
	if key == "" || c.APIKey() != "" {
		return nil
	}
	return c.SetAPIKey(key)
}

// Token returns the stored bearer token or "".
func (c *Credentials) Token() string { return c.get(TokenKey) }

// SetToken stores the bearer token.
func (c *Credentials) SetToken(token string) error { return c.set(TokenKey, token) }

// ClearToken forgets the bearer token.
func (c *Credentials) ClearToken() { c.clear(TokenKey) }

func (c *Credentials) get(key string) string {
	v, err := c.kv.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("failed to read credential", zap.String("key", key), zap.Error(err))
		}
		return ""
	}
	return string(v)
}

func (c *Credentials) set(key, value string) error {
	if err := c.kv.Set(key, []byte(value)); err != nil {
		return &Error{Op: "put", Key: key, Err: err}
	}
	return nil
}

func (c *Credentials) clear(key string) {
	if err := c.kv.Delete(key); err != nil {
		c.logger.Warn("failed to clear credential", zap.String("key", key), zap.Error(err))
	}
}
