package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deputeti-ai/chat-gateway/internal/backend"
	"github.com/deputeti-ai/chat-gateway/internal/events"
	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/internal/store"
	"github.com/deputeti-ai/chat-gateway/internal/translation"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
)

// fakeContract records turns and answers with a canned reply or error.
type fakeContract struct {
	mu    sync.Mutex
	turns []backend.Turn
	reply *backend.Reply
	err   error
}

func (f *fakeContract) Name() string { return "fake" }

func (f *fakeContract) Send(_ context.Context, turn *backend.Turn) (*backend.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, *turn)
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

// upperTranslator marks translated text so tests can see which way it went.
type upperTranslator struct{}

func (upperTranslator) Name() string { return "marker" }

func (upperTranslator) Translate(_ context.Context, text, from, to string) (string, error) {
	return from + ">" + to + ":" + text, nil
}

func newSessions(t *testing.T) *store.Sessions {
	t.Helper()
	bus := events.NewLocalBus(logger.Nop())
	t.Cleanup(func() { bus.Close() })
	return store.NewSessions(store.NewMemoryKV(), bus, logger.Nop())
}

func TestSendMessagePersistsConversation(t *testing.T) {
	sessions := newSessions(t)
	contract := &fakeContract{reply: &backend.Reply{Content: "It governs withdrawal."}}
	c := NewClient(contract, sessions, logger.Nop())
	ctx := context.Background()

	history := []model.ChatMessage{model.UserMessage("hello"), model.AssistantMessage("hi")}
	resp, err := c.SendMessage(ctx, "What is Article 50 TEU?", "session_1", history)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "It governs withdrawal.", resp.Response)

	stored := sessions.Get("session_1")
	require.Len(t, stored, 4)
	assert.Equal(t, model.UserMessage("What is Article 50 TEU?"), stored[2])
	assert.Equal(t, model.AssistantMessage("It governs withdrawal."), stored[3])

	require.Len(t, contract.turns, 1)
	assert.Equal(t, "What is Article 50 TEU?", contract.turns[0].Text)
	assert.Equal(t, history, contract.turns[0].History)
}

func TestSendMessageFreshSessionStartsWithUserText(t *testing.T) {
	sessions := newSessions(t)
	c := NewClient(&fakeContract{reply: &backend.Reply{Content: "ok"}}, sessions, logger.Nop())

	id := model.NewSessionID()
	_, err := c.SendMessage(context.Background(), "  Who invoked it?  ", id, nil)
	require.NoError(t, err)

	stored := sessions.Get(id)
	require.NotEmpty(t, stored)
	assert.Equal(t, model.UserMessage("  Who invoked it?  "), stored[0])
}

func TestSendMessageEmptyIsNoop(t *testing.T) {
	sessions := newSessions(t)
	contract := &fakeContract{reply: &backend.Reply{Content: "ok"}}
	c := NewClient(contract, sessions, logger.Nop())

	for _, text := range []string{"", "   ", "\n\t"} {
		resp, err := c.SendMessage(context.Background(), text, "s", nil)
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}

	assert.Empty(t, contract.turns)
	assert.Empty(t, sessions.List())
}

func TestSendMessageBackendFailureKeepsUserTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"Backend exploded"}`))
	}))
	defer srv.Close()

	sessions := newSessions(t)
	creds := store.NewCredentials(store.NewMemoryKV(), logger.Nop())
	contract := backend.NewCompletionContract(backend.CompletionConfig{BaseURL: srv.URL}, creds, logger.Nop())
	c := NewClient(contract, sessions, logger.Nop())
	ctx := context.Background()

	resp, err := c.SendMessage(ctx, "What is Article 50 TEU?", "s", nil)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Backend exploded", resp.Error)
	assert.Empty(t, sessions.Get("s"), "failed turns are persisted by the caller")

	require.NoError(t, c.PersistFailure(ctx, "s", nil, "What is Article 50 TEU?", resp.Error))

	stored := sessions.Get("s")
	require.Len(t, stored, 2)
	assert.Equal(t, model.UserMessage("What is Article 50 TEU?"), stored[0])
	assert.Equal(t, model.AssistantMessage("Backend exploded"), stored[1])
}

func TestSendMessageLoginRequired(t *testing.T) {
	contract := &fakeContract{err: &backend.StatusError{
		Status:        http.StatusUnauthorized,
		Body:          []byte(`{"detail":"Invalid API key"}`),
		Err:           backend.ErrUnauthorized,
		LoginRequired: true,
	}}
	c := NewClient(contract, newSessions(t), logger.Nop())

	resp, err := c.SendMessage(context.Background(), "q", "s", nil)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.True(t, resp.LoginRequired)
	assert.Equal(t, "Invalid API key", resp.Error)
}

func TestSendMessageStoresConversationID(t *testing.T) {
	sessions := newSessions(t)
	contract := &fakeContract{reply: &backend.Reply{Content: "a", ConversationID: "conv-7"}}
	c := NewClient(contract, sessions, logger.Nop())
	ctx := context.Background()

	_, err := c.SendMessage(ctx, "q", "s", nil)
	require.NoError(t, err)

	sess, ok := sessions.Load("s")
	require.True(t, ok)
	assert.Equal(t, "conv-7", sess.ConversationID)
	assert.Len(t, sess.Messages, 2)

	_, err = c.SendMessage(ctx, "again", "s", sess.Messages)
	require.NoError(t, err)
	assert.Equal(t, "conv-7", contract.turns[1].ConversationID)
}

func TestSendMessageTranslatesAlbanian(t *testing.T) {
	sessions := newSessions(t)
	contract := &fakeContract{reply: &backend.Reply{Content: "Article 50 governs withdrawal."}}
	pass := translation.NewPass(upperTranslator{}, logger.Nop())
	c := NewClient(contract, sessions, logger.Nop(), WithTranslation(pass))

	resp, err := c.SendMessage(context.Background(), "Çfarë është neni 50?", "s", nil)
	require.NoError(t, err)

	require.Len(t, contract.turns, 1)
	assert.Equal(t, "sq>en:Çfarë është neni 50?", contract.turns[0].Text)
	assert.NotEqual(t, "Çfarë është neni 50?", contract.turns[0].Text)
	assert.Equal(t, "en>sq:Article 50 governs withdrawal.", resp.Response)

	stored := sessions.Get("s")
	require.Len(t, stored, 2)
	assert.Equal(t, "Çfarë është neni 50?", stored[0].Content)
}

func TestSendMessageEnglishBypassesTranslation(t *testing.T) {
	contract := &fakeContract{reply: &backend.Reply{Content: "Answer."}}
	pass := translation.NewPass(upperTranslator{}, logger.Nop())
	c := NewClient(contract, newSessions(t), logger.Nop(), WithTranslation(pass))

	resp, err := c.SendMessage(context.Background(), "What is Article 50 TEU?", "s", nil)
	require.NoError(t, err)

	assert.Equal(t, "What is Article 50 TEU?", contract.turns[0].Text)
	assert.Equal(t, "Answer.", resp.Response)
}
