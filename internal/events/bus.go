// Package events provides the session-change notification bus that keeps
// sidebar views in sync with the session store.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
	"github.com/deputeti-ai/chat-gateway/pkg/metrics"
)

// subscriberBuffer is how many undelivered events a slow subscriber may hold
// before further events to it are dropped.
const subscriberBuffer = 32

// Bus is a process-wide publish/subscribe channel for session events.
type Bus interface {
	// Publish broadcasts ev to every subscriber. It never blocks on slow
	// subscribers.
	Publish(ctx context.Context, ev model.SessionEvent)

	// Subscribe registers fn and returns a function that removes it.
	Subscribe(fn func(model.SessionEvent)) (unsubscribe func())

	// Close stops delivery to all subscribers.
	Close() error
}

type subscriber struct {
	ch   chan model.SessionEvent
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.ch) })
}

// LocalBus delivers events to subscribers inside this process. Each
// subscriber runs on its own goroutine fed by a buffered channel.
type LocalBus struct {
	origin string
	logger *logger.Logger

	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
}

// NewLocalBus creates an in-process bus.
func NewLocalBus(log *logger.Logger) *LocalBus {
	return &LocalBus{
		origin: uuid.NewString(),
		logger: log,
		subs:   make(map[uint64]*subscriber),
	}
}

// Origin identifies events published by this bus instance.
func (b *LocalBus) Origin() string {
	return b.origin
}

// Stamp fills in the id, origin and timestamp of ev when they are unset.
func (b *LocalBus) Stamp(ev model.SessionEvent) model.SessionEvent {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Origin == "" {
		ev.Origin = b.origin
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return ev
}

// Publish stamps and delivers ev.
func (b *LocalBus) Publish(_ context.Context, ev model.SessionEvent) {
	ev = b.Stamp(ev)
	metrics.RecordSessionEvent(string(ev.Type))
	b.Deliver(ev)
}

// Deliver hands ev to every subscriber as is.
func (b *LocalBus) Deliver(ev model.SessionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for id, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("dropping session event for slow subscriber",
				zap.Uint64("subscriber", id),
				zap.String("type", string(ev.Type)),
				zap.String("session_id", ev.SessionID),
			)
		}
	}
}

// Subscribe registers fn. fn is called sequentially, never concurrently with
// itself.
func (b *LocalBus) Subscribe(fn func(model.SessionEvent)) func() {
	sub := &subscriber{ch: make(chan model.SessionEvent, subscriberBuffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		for ev := range sub.ch {
			fn(ev)
		}
	}()

	return func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			sub.stop()
		}
		b.mu.Unlock()
	}
}

// Close stops all subscriber goroutines. Publishing after Close is a no-op.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.stop()
		delete(b.subs, id)
	}
	return nil
}
