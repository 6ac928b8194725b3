package translation

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
	"github.com/deputeti-ai/chat-gateway/pkg/metrics"
)

const historyConcurrency = 4

// Pass wraps a Translator for the chat flow. Every method degrades to
// returning its input when translation fails; a nil Pass passes everything
// through untouched.
type Pass struct {
	translator Translator
	logger     *logger.Logger
}

// NewPass creates a translation pass over t.
func NewPass(t Translator, log *logger.Logger) *Pass {
	return &Pass{translator: t, logger: log.Named("translation")}
}

// TranslateToEnglish translates text only when it is detected as Albanian.
func (p *Pass) TranslateToEnglish(ctx context.Context, text string) string {
	if !DetectAlbanian(text) {
		return text
	}
	return p.translate(ctx, text, Albanian, English, "to_english")
}

// TranslateToAlbanian translates any non-blank text.
func (p *Pass) TranslateToAlbanian(ctx context.Context, text string) string {
	return p.translate(ctx, text, English, Albanian, "to_albanian")
}

// Outbound prepares a user message for the backend. The second result
// reports whether the input was Albanian, which decides Inbound.
func (p *Pass) Outbound(ctx context.Context, text string) (string, bool) {
	if p == nil || !DetectAlbanian(text) {
		return text, false
	}
	return p.translate(ctx, text, Albanian, English, "to_english"), true
}

// Inbound prepares a backend reply for display.
func (p *Pass) Inbound(ctx context.Context, reply string, albanian bool) string {
	if !albanian {
		return reply
	}
	return p.TranslateToAlbanian(ctx, reply)
}

// History returns a copy of msgs with Albanian user and assistant turns
// translated to English. System messages are never translated.
func (p *Pass) History(ctx context.Context, msgs []model.ChatMessage) []model.ChatMessage {
	out := append([]model.ChatMessage{}, msgs...)
	if p == nil || p.translator == nil {
		return out
	}

	var g errgroup.Group
	g.SetLimit(historyConcurrency)
	for i := range out {
		if out[i].Role == model.RoleSystem || !DetectAlbanian(out[i].Content) {
			continue
		}
		g.Go(func() error {
			out[i].Content = p.translate(ctx, out[i].Content, Albanian, English, "history")
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (p *Pass) translate(ctx context.Context, text, from, to, direction string) string {
	if p == nil || p.translator == nil || strings.TrimSpace(text) == "" {
		return text
	}

	translated, err := p.translator.Translate(ctx, text, from, to)
	if err != nil || translated == "" {
		metrics.RecordTranslation(direction, "failed")
		p.logger.Warn("translation failed, using original text",
			zap.String("provider", p.translator.Name()),
			zap.String("direction", direction),
			zap.Error(err),
		)
		return text
	}

	metrics.RecordTranslation(direction, "ok")
	p.logger.Debug("translated text",
		zap.String("provider", p.translator.Name()),
		zap.String("direction", direction),
		zap.Int("chars", len([]rune(text))),
	)
	return translated
}
