// Package app assembles the chat stack from configuration. The gateway and
// the terminal client share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/deputeti-ai/chat-gateway/internal/backend"
	"github.com/deputeti-ai/chat-gateway/internal/chat"
	"github.com/deputeti-ai/chat-gateway/internal/config"
	"github.com/deputeti-ai/chat-gateway/internal/events"
	natsclient "github.com/deputeti-ai/chat-gateway/internal/nats"
	"github.com/deputeti-ai/chat-gateway/internal/store"
	"github.com/deputeti-ai/chat-gateway/internal/translation"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
)

const natsConnectTimeout = 10 * time.Second

// App is the wired chat stack.
type App struct {
	KV          store.KV
	Bus         events.Bus
	NATS        *natsclient.Client // nil when events stay in-process
	Sessions    *store.Sessions
	Credentials *store.Credentials
	Contract    backend.Contract
	Client      *chat.Client
}

// New opens storage, the event bus and the backend contract described by cfg.
// Close releases them.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{}

	kv, err := openKV(cfg)
	if err != nil {
		return nil, err
	}
	a.KV = kv

	if cfg.NATSURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, natsConnectTimeout)
		client, err := natsclient.Connect(connectCtx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log.Named("nats"))
		cancel()
		if err != nil {
			a.Close()
			return nil, err
		}
		a.NATS = client

		bus, err := natsclient.NewBus(client, log.Named("events"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Bus = bus
	} else {
		a.Bus = events.NewLocalBus(log.Named("events"))
	}

	a.Sessions = store.NewSessions(kv, a.Bus, log.Named("store"))
	a.Credentials = store.NewCredentials(kv, log.Named("credentials"))
	if err := a.Credentials.SeedAPIKey(cfg.BackendAPIKey); err != nil {
		log.Warn("failed to store configured API key", zap.Error(err))
	}

	contract, err := backend.New(backend.Config{
		Contract: cfg.BackendContract,
		BaseURL:  cfg.BackendURL,
		Timeout:  cfg.RequestTimeout,
		Model:    cfg.ChatModel,
		Username: cfg.BackendUsername,
		Password: cfg.BackendPassword,
		Profile:  cfg.ConversationProfile,
	}, a.Credentials, log.Named("backend"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Contract = contract

	var opts []chat.Option
	if cfg.TranslationEnabled {
		t, err := NewTranslator(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, chat.WithTranslation(translation.NewPass(t, log)))
		log.Info("translation enabled", zap.String("provider", t.Name()))
	}

	a.Client = chat.NewClient(contract, a.Sessions, log.Named("chat"), opts...)

	return a, nil
}

// NewTranslator builds the translator selected by TRANSLATION_PROVIDER.
func NewTranslator(cfg *config.Config) (translation.Translator, error) {
	switch cfg.TranslationProvider {
	case config.TranslateGoogle, "":
		return translation.NewGoogleTranslator(cfg.TranslateURL, backend.NewHTTPClient(cfg.RequestTimeout)), nil
	case config.TranslateAnthropic:
		t, err := translation.NewAnthropicTranslator(cfg.AnthropicAPIKey, cfg.TranslationModel)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown translation provider %q", cfg.TranslationProvider)
	}
}

// Close shuts down the bus, the NATS connection and storage.
func (a *App) Close() error {
	var errs []error
	if a.Bus != nil {
		errs = append(errs, a.Bus.Close())
	}
	if a.NATS != nil {
		a.NATS.Close()
	}
	if a.KV != nil {
		errs = append(errs, a.KV.Close())
	}
	return errors.Join(errs...)
}

func openKV(cfg *config.Config) (store.KV, error) {
	switch cfg.StoreDriver {
	case config.StorePebble:
		kv, err := store.OpenPebble(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		return kv, nil
	case config.StoreMemory, "":
		return store.NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
