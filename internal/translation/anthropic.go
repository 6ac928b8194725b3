package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no translation model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-20241022"

var languageNames = map[string]string{
	Albanian: "Albanian",
	English:  "English",
}

// AnthropicTranslator translates with a Claude model.
type AnthropicTranslator struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicTranslator creates a Claude-backed translator. Extra options
// such as option.WithBaseURL are passed to the SDK client.
func NewAnthropicTranslator(apiKey, model string, opts ...option.RequestOption) (*AnthropicTranslator, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &AnthropicTranslator{client: client, model: model}, nil
}

func (a *AnthropicTranslator) Name() string { return "anthropic" }

func (a *AnthropicTranslator) Translate(ctx context.Context, text, from, to string) (string, error) {
	prompt := fmt.Sprintf(
		"Translate the following text from %s to %s. Reply with the translation only.\n\n%s",
		languageName(from), languageName(to), text,
	)

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(a.model),
		MaxTokens: anthropic.F(int64(4096)),
		Messages: anthropic.F([]anthropic.MessageParam{{
			Role: anthropic.F(anthropic.MessageParamRole("user")),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(prompt),
				},
			}),
		}}),
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			b.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyTranslation
	}
	return out, nil
}

func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}
