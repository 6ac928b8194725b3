package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
)

func collect(t *testing.T, bus Bus) (func() []model.SessionEvent, func()) {
	t.Helper()
	var mu sync.Mutex
	var got []model.SessionEvent
	unsub := bus.Subscribe(func(ev model.SessionEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	return func() []model.SessionEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]model.SessionEvent(nil), got...)
	}, unsub
}

func TestLocalBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewLocalBus(logger.Nop())
	defer bus.Close()

	first, _ := collect(t, bus)
	second, _ := collect(t, bus)

	bus.Publish(context.Background(), model.SessionEvent{Type: model.EventSessionUpdated, SessionID: "s1"})

	require.Eventually(t, func() bool { return len(first()) == 1 && len(second()) == 1 }, time.Second, 5*time.Millisecond)

	ev := first()[0]
	assert.Equal(t, model.EventSessionUpdated, ev.Type)
	assert.Equal(t, "s1", ev.SessionID)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, bus.Origin(), ev.Origin)
	assert.False(t, ev.CreatedAt.IsZero())
}

func TestLocalBusUnsubscribe(t *testing.T) {
	bus := NewLocalBus(logger.Nop())
	defer bus.Close()

	got, unsub := collect(t, bus)
	unsub()
	unsub()

	bus.Publish(context.Background(), model.SessionEvent{Type: model.EventSessionDeleted})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, got())
}

func TestLocalBusClose(t *testing.T) {
	bus := NewLocalBus(logger.Nop())
	got, _ := collect(t, bus)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	bus.Publish(context.Background(), model.SessionEvent{Type: model.EventSessionUpdated})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, got())

	// Subscribing after close returns a usable no-op unsubscribe.
	bus.Subscribe(func(model.SessionEvent) {})()
}

func TestLocalBusSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	bus := NewLocalBus(logger.Nop())
	defer bus.Close()

	release := make(chan struct{})
	bus.Subscribe(func(model.SessionEvent) { <-release })

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			bus.Publish(context.Background(), model.SessionEvent{Type: model.EventSessionUpdated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
	close(release)
}
