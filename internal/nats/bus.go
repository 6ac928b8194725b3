package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/deputeti-ai/chat-gateway/internal/events"
	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
	"github.com/deputeti-ai/chat-gateway/pkg/metrics"
)

// SessionsSubject carries session events between replicas.
const SessionsSubject = "deputeti.sessions"

// Bus is an events.Bus that also relays events through NATS so sidebars on
// every replica refresh. Events published here are delivered locally right
// away; the copy echoed back by NATS is skipped by origin.
type Bus struct {
	local  *events.LocalBus
	client *Client
	sub    *nats.Subscription
	logger *logger.Logger
}

var _ events.Bus = (*Bus)(nil)

// NewBus subscribes to SessionsSubject and returns the relaying bus.
func NewBus(client *Client, log *logger.Logger) (*Bus, error) {
	b := &Bus{
		local:  events.NewLocalBus(log),
		client: client,
		logger: log,
	}

	sub, err := client.Conn().Subscribe(SessionsSubject, b.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", SessionsSubject, err)
	}
	b.sub = sub

	return b, nil
}

func (b *Bus) handle(msg *nats.Msg) {
	var ev model.SessionEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		b.logger.Warn("discarding malformed session event", zap.Error(err))
		return
	}
	if ev.Origin == b.local.Origin() {
		return
	}
	b.local.Deliver(ev)
}

// Publish delivers ev locally and forwards it to other replicas.
func (b *Bus) Publish(ctx context.Context, ev model.SessionEvent) {
	ev = b.local.Stamp(ev)
	metrics.RecordSessionEvent(string(ev.Type))
	b.local.Deliver(ev)

	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("failed to marshal session event", zap.Error(err))
		return
	}
	if err := b.client.Conn().Publish(SessionsSubject, data); err != nil {
		b.logger.Warn("failed to relay session event",
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

// Subscribe registers fn for local and relayed events.
func (b *Bus) Subscribe(fn func(model.SessionEvent)) func() {
	return b.local.Subscribe(fn)
}

// Close unsubscribes from NATS and stops local delivery.
func (b *Bus) Close() error {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			b.logger.Warn("failed to unsubscribe from session events", zap.Error(err))
		}
	}
	return b.local.Close()
}
