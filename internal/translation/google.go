package translation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GoogleEndpoint is the keyless translate endpoint.
const GoogleEndpoint = "https://translate.googleapis.com/translate_a/single"

// Translator translates text between two language codes.
type Translator interface {
	Name() string
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// ErrEmptyTranslation means the provider answered without any text.
var ErrEmptyTranslation = errors.New("translation returned no text")

// GoogleTranslator calls the gtx translate endpoint.
type GoogleTranslator struct {
	endpoint string
	http     *http.Client
}

// NewGoogleTranslator creates a translator against endpoint, or
// GoogleEndpoint when empty.
func NewGoogleTranslator(endpoint string, client *http.Client) *GoogleTranslator {
	if endpoint == "" {
		endpoint = GoogleEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &GoogleTranslator{endpoint: endpoint, http: client}
}

func (g *GoogleTranslator) Name() string { return "google" }

// Translate returns the concatenated translated segments.
func (g *GoogleTranslator) Translate(ctx context.Context, text, from, to string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", from)
	q.Set("tl", to)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("translate request failed: %s", resp.Status)
	}

	// [[["translated","source",...],...],...]
	var data []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("decode translation: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmptyTranslation
	}

	var segments [][]any
	if err := json.Unmarshal(data[0], &segments); err != nil {
		return "", ErrEmptyTranslation
	}

	var b strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if part, ok := seg[0].(string); ok {
			b.WriteString(part)
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyTranslation
	}
	return b.String(), nil
}
