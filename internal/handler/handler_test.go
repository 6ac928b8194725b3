package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deputeti-ai/chat-gateway/internal/backend"
	"github.com/deputeti-ai/chat-gateway/internal/chat"
	"github.com/deputeti-ai/chat-gateway/internal/events"
	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/internal/service"
	"github.com/deputeti-ai/chat-gateway/internal/store"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
)

// stubContract answers every turn with reply, or fails with err.
type stubContract struct {
	mu      sync.Mutex
	reply   string
	err     error
	block   chan struct{}
	started chan struct{}
	turns   []*backend.Turn
}

func (c *stubContract) Name() string { return "stub" }

func (c *stubContract) Send(_ context.Context, turn *backend.Turn) (*backend.Reply, error) {
	c.mu.Lock()
	c.turns = append(c.turns, turn)
	c.mu.Unlock()
	if c.started != nil {
		close(c.started)
	}
	if c.block != nil {
		<-c.block
	}
	if c.err != nil {
		return nil, c.err
	}
	return &backend.Reply{Content: c.reply}, nil
}

type fixture struct {
	store    *store.Sessions
	sessions *service.ConversationSessions
	router   chi.Router
}

func newFixture(t *testing.T, contract backend.Contract) *fixture {
	t.Helper()

	bus := events.NewLocalBus(logger.Nop())
	st := store.NewSessions(store.NewMemoryKV(), bus, logger.Nop())
	sessions := service.NewConversationSessions(st, logger.Nop())
	t.Cleanup(func() {
		sessions.Close()
		bus.Close()
	})

	client := chat.NewClient(contract, st, logger.Nop())
	api := &API{
		Health:   NewHealthHandler(nil),
		Sessions: NewSessionsHandler(st, sessions, logger.Nop()),
		Chat:     NewChatHandler(client, st, service.NewGuard(), logger.Nop()),
		Stream:   NewStreamHandler(sessions, 20*time.Millisecond, logger.Nop()),
	}

	r := chi.NewRouter()
	api.Mount(r)

	return &fixture{store: st, sessions: sessions, router: r}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, &stubContract{})

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").Code)

	rec := f.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestChatStartsConversation(t *testing.T) {
	contract := &stubContract{reply: "Article 50 TEU governs withdrawal."}
	f := newFixture(t, contract)

	rec := f.do(t, http.MethodPost, "/api/v1/chat", `{"content":"What is Article 50 TEU?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[model.SendMessageResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "Article 50 TEU governs withdrawal.", resp.Response)
	assert.True(t, strings.HasPrefix(resp.SessionID, "session_"))
	assert.Equal(t, []model.ChatMessage{
		model.UserMessage("What is Article 50 TEU?"),
		model.AssistantMessage("Article 50 TEU governs withdrawal."),
	}, resp.Messages)

	stored := f.store.Get(resp.SessionID)
	assert.Equal(t, resp.Messages, stored)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/"+resp.SessionID+"/messages", `{"content":"And Article 49?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[model.SendMessageResponse](t, rec).Messages, 4)

	require.Len(t, contract.turns, 2)
	assert.Len(t, contract.turns[1].History, 2)
}

func TestChatRejectsBadInput(t *testing.T) {
	contract := &stubContract{reply: "unused"}
	f := newFixture(t, contract)

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "empty content", path: "/api/v1/chat", body: `{"content":""}`},
		{name: "blank content", path: "/api/v1/chat", body: `{"content":"   "}`},
		{name: "malformed body", path: "/api/v1/chat", body: `{`},
		{name: "bad session id", path: "/api/v1/chat", body: `{"session_id":"../x","content":"q"}`},
		{name: "empty content to session", path: "/api/v1/sessions/s1/messages", body: `{"content":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}

	assert.Empty(t, contract.turns)
	assert.Empty(t, f.store.List())
}

func TestChatBackendFailureIsPersisted(t *testing.T) {
	contract := &stubContract{err: &backend.StatusError{
		Status: http.StatusInternalServerError,
		Body:   []byte(`{"detail":"Index unavailable"}`),
	}}
	f := newFixture(t, contract)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/s1/messages", `{"content":"q"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[model.SendMessageResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "Index unavailable", resp.Error)
	assert.Equal(t, []model.ChatMessage{
		model.UserMessage("q"),
		model.AssistantMessage("Index unavailable"),
	}, f.store.Get("s1"))
}

func TestChatLoginRequired(t *testing.T) {
	contract := &stubContract{err: &backend.StatusError{
		Status:        http.StatusUnauthorized,
		Body:          []byte(`{"detail":"Invalid API key"}`),
		Err:           backend.ErrUnauthorized,
		LoginRequired: true,
	}}
	f := newFixture(t, contract)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/s1/messages", `{"content":"q"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	resp := decode[model.SendMessageResponse](t, rec)
	assert.True(t, resp.LoginRequired)
	assert.Equal(t, LoginURL, resp.LoginURL)
	assert.NotEmpty(t, resp.Error)
}

func TestChatInFlightConflict(t *testing.T) {
	contract := &stubContract{
		reply:   "done",
		started: make(chan struct{}),
		block:   make(chan struct{}),
	}
	f := newFixture(t, contract)

	first := make(chan int, 1)
	go func() {
		first <- f.do(t, http.MethodPost, "/api/v1/sessions/s1/messages", `{"content":"one"}`).Code
	}()

	<-contract.started
	rec := f.do(t, http.MethodPost, "/api/v1/sessions/s1/messages", `{"content":"two"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(contract.block)
	assert.Equal(t, http.StatusOK, <-first)
	assert.Len(t, f.store.Get("s1"), 2)
}

func TestSessionsEndpoints(t *testing.T) {
	f := newFixture(t, &stubContract{reply: "r"})
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, "s1", []model.ChatMessage{model.UserMessage("first"), model.AssistantMessage("r")}))
	require.NoError(t, f.store.SetConversationID(ctx, "s1", "conv-1"))

	rec := f.do(t, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[model.ListSessionsResponse](t, rec)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "first", list.Sessions[0].Preview)

	rec = f.do(t, http.MethodGet, "/api/v1/sessions/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decode[model.ConversationSession](t, rec)
	assert.Equal(t, "conv-1", sess.ConversationID)
	assert.Len(t, sess.Messages, 2)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/sessions/missing", "").Code)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"session_id":null}`, rec.Body.String())

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/v1/sessions/s1", "").Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/v1/sessions/s1", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/sessions/s1", "").Code)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[model.ListSessionsResponse](t, rec).Total)
}

func TestSessionsListedRightAfterChat(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, &stubContract{reply: "r"})

		rec := f.do(t, http.MethodPost, "/api/v1/chat", `{"content":"What is Article 50 TEU?"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		id := decode[model.SendMessageResponse](t, rec).SessionID

		rec = f.do(t, http.MethodGet, "/api/v1/sessions", "")
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[model.ListSessionsResponse](t, rec)
		require.Equal(t, 1, list.Total, "attempt %d", i)
		assert.Equal(t, id, list.Sessions[0].SessionID)
		assert.Equal(t, 2, list.Sessions[0].MessageCount)
	}
}

type sseEvent struct {
	name string
	data string
}

func readEvents(body *bufio.Reader, out chan<- sseEvent) {
	defer close(out)
	var ev sseEvent
	for {
		line, err := body.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			out <- ev
			ev = sseEvent{}
		}
	}
}

func TestSessionsStream(t *testing.T) {
	f := newFixture(t, &stubContract{reply: "r"})
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/sessions/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	evs := make(chan sseEvent, 64)
	go readEvents(bufio.NewReader(resp.Body), evs)

	next := func(name string, match func(string) bool) sseEvent {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case ev, ok := <-evs:
				require.True(t, ok, "stream closed")
				if ev.name == name && (match == nil || match(ev.data)) {
					return ev
				}
			case <-deadline:
				t.Fatalf("no %q event", name)
			}
		}
	}

	initial := next("sessions", nil)
	assert.JSONEq(t, `{"sessions":[],"total":0}`, initial.data)

	require.NoError(t, f.store.Put(context.Background(), "s1", []model.ChatMessage{model.UserMessage("q")}))

	next("sessions", func(data string) bool {
		var list model.ListSessionsResponse
		return json.Unmarshal([]byte(data), &list) == nil && list.Total == 1 && list.Sessions[0].SessionID == "s1"
	})

	next("heartbeat", nil)
}

func TestSessionsStreamOutlivesWriteTimeout(t *testing.T) {
	f := newFixture(t, &stubContract{reply: "r"})
	srv := httptest.NewUnstartedServer(f.router)
	srv.Config.WriteTimeout = 100 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/sessions/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	evs := make(chan sseEvent, 64)
	go readEvents(bufio.NewReader(resp.Body), evs)

	start := time.Now()
	for time.Since(start) < 400*time.Millisecond {
		select {
		case _, ok := <-evs:
			require.True(t, ok, "stream closed after %s", time.Since(start))
		case <-time.After(time.Second):
			t.Fatalf("stream stalled after %s", time.Since(start))
		}
	}
}
