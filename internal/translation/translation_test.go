package translation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
)

type call struct {
	text, from, to string
}

// fakeTranslator prefixes the target language code, or fails when err is set.
type fakeTranslator struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeTranslator) Name() string { return "fake" }

func (f *fakeTranslator) Translate(_ context.Context, text, from, to string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{text: text, from: from, to: to})
	if f.err != nil {
		return "", f.err
	}
	return "[" + to + "] " + text, nil
}

func (f *fakeTranslator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestDetectAlbanian(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"What is Article 50 TEU?", false},
		{"Tell me about ligj and shtet", false},
		{"How does the European Union work?", false},
		{"Hello there", false},
		{"", false},
		{"   ", false},
		{"Çfarë është neni 50?", true},
		{"Një pyetje", true},
		{"cfare eshte neni 50", true},
		{"Ku eshte selia e BE", true},
		{"si quhet presidenti", true},
		{"me trego per neni 7", true},
		{"traktatit te bashkimi", true},
		{"Kam nje pyetje per ligjit", true},
		{"ligjit", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectAlbanian(tt.text))
		})
	}
}

func TestPassLeavesEnglishAlone(t *testing.T) {
	fake := &fakeTranslator{}
	p := NewPass(fake, logger.Nop())
	ctx := context.Background()

	out, albanian := p.Outbound(ctx, "What is Article 50 TEU?")
	assert.Equal(t, "What is Article 50 TEU?", out)
	assert.False(t, albanian)
	assert.Equal(t, "The answer.", p.Inbound(ctx, "The answer.", albanian))
	assert.Equal(t, "What is Article 50 TEU?", p.TranslateToEnglish(ctx, "What is Article 50 TEU?"))
	assert.Zero(t, fake.count())
}

func TestPassRoundTripsAlbanian(t *testing.T) {
	fake := &fakeTranslator{}
	p := NewPass(fake, logger.Nop())
	ctx := context.Background()

	out, albanian := p.Outbound(ctx, "Çfarë është neni 50?")
	require.True(t, albanian)
	assert.Equal(t, "[en] Çfarë është neni 50?", out)

	assert.Equal(t, "[sq] Article 50 governs withdrawal.", p.Inbound(ctx, "Article 50 governs withdrawal.", albanian))
	require.Len(t, fake.calls, 2)
	assert.Equal(t, call{text: "Çfarë është neni 50?", from: Albanian, to: English}, fake.calls[0])
	assert.Equal(t, English, fake.calls[1].from)
	assert.Equal(t, Albanian, fake.calls[1].to)
}

func TestPassDegradesOnFailure(t *testing.T) {
	p := NewPass(&fakeTranslator{err: errors.New("throttled")}, logger.Nop())
	ctx := context.Background()

	out, albanian := p.Outbound(ctx, "Çfarë është neni 50?")
	assert.True(t, albanian)
	assert.Equal(t, "Çfarë është neni 50?", out)
	assert.Equal(t, "reply", p.Inbound(ctx, "reply", true))
}

func TestPassBlankInput(t *testing.T) {
	fake := &fakeTranslator{}
	p := NewPass(fake, logger.Nop())

	assert.Equal(t, "  ", p.TranslateToAlbanian(context.Background(), "  "))
	assert.Equal(t, "", p.TranslateToEnglish(context.Background(), ""))
	assert.Zero(t, fake.count())
}

func TestPassHistory(t *testing.T) {
	fake := &fakeTranslator{}
	p := NewPass(fake, logger.Nop())

	history := []model.ChatMessage{
		{Role: model.RoleSystem, Content: "Përgjigju shkurt"},
		model.UserMessage("Çfarë është neni 50?"),
		model.AssistantMessage("Neni 50 rregullon tërheqjen."),
		model.UserMessage("Who invoked it?"),
	}

	out := p.History(context.Background(), history)
	require.Len(t, out, 4)
	assert.Equal(t, "Përgjigju shkurt", out[0].Content)
	assert.Equal(t, "[en] Çfarë është neni 50?", out[1].Content)
	assert.Equal(t, "[en] Neni 50 rregullon tërheqjen.", out[2].Content)
	assert.Equal(t, "Who invoked it?", out[3].Content)
	assert.Equal(t, 2, fake.count())

	assert.Equal(t, "Çfarë është neni 50?", history[1].Content, "input must not be modified")
}

func TestNilPassIsPassthrough(t *testing.T) {
	var p *Pass
	ctx := context.Background()

	out, albanian := p.Outbound(ctx, "Çfarë është?")
	assert.Equal(t, "Çfarë është?", out)
	assert.False(t, albanian)

	msgs := []model.ChatMessage{model.UserMessage("Çfarë është?")}
	assert.Equal(t, msgs, p.History(ctx, msgs))
}

func TestGoogleTranslator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "gtx", q.Get("client"))
		assert.Equal(t, "sq", q.Get("sl"))
		assert.Equal(t, "en", q.Get("tl"))
		assert.Equal(t, "t", q.Get("dt"))
		assert.Equal(t, "Çfarë është neni 50? Pse?", q.Get("q"))

		_, _ = w.Write([]byte(`[[["What is article 50? ","Çfarë është neni 50? ",null,null,10],["Why?","Pse?",null,null,10]],null,"sq"]`))
	}))
	defer srv.Close()

	g := NewGoogleTranslator(srv.URL, srv.Client())
	out, err := g.Translate(context.Background(), "Çfarë është neni 50? Pse?", Albanian, English)
	require.NoError(t, err)
	assert.Equal(t, "What is article 50? Why?", out)
}

func TestGoogleTranslatorFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "oops"},
		{name: "not json", status: http.StatusOK, body: "<html>"},
		{name: "no segments", status: http.StatusOK, body: `[null,null,"sq"]`},
		{name: "empty array", status: http.StatusOK, body: `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewGoogleTranslator(srv.URL, srv.Client()).Translate(context.Background(), "x", Albanian, English)
			assert.Error(t, err)
		})
	}
}

func TestAnthropicTranslator(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if len(body.Messages) > 0 && len(body.Messages[0].Content) > 0 {
			prompt = body.Messages[0].Content[0].Text
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-20241022",
			"content": [{"type": "text", "text": "  Neni 50 rregullon tërheqjen. "}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 9}
		}`))
	}))
	defer srv.Close()

	a, err := NewAnthropicTranslator("test-key", "", option.WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", a.Name())

	out, err := a.Translate(context.Background(), "Article 50 governs withdrawal.", English, Albanian)
	require.NoError(t, err)
	assert.Equal(t, "Neni 50 rregullon tërheqjen.", out)
	assert.Contains(t, prompt, "from English to Albanian")
	assert.Contains(t, prompt, "Article 50 governs withdrawal.")
}

func TestAnthropicTranslatorRequiresKey(t *testing.T) {
	_, err := NewAnthropicTranslator("", "")
	assert.Error(t, err)
}
