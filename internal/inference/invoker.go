// Package inference sends a file to a selected provider's OpenAI-compatible
// endpoint and parses the category and summary out of the answer.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/model"
	"github.com/concierge-labs/concierge/internal/provider"
)

// excerptLen bounds the raw body quoted in a malformed-response error.
const excerptLen = 200

var (
	// ErrMalformedResponse is returned when the response body is not JSON.
	ErrMalformedResponse = eris.New("inference: service did not return JSON")
	// ErrProviderError is returned when the response carries no choices.
	ErrProviderError = eris.New("inference: provider error")
)

// Signer issues per-request auth headers bound to one prompt.
type Signer interface {
	RequestHeaders(ctx context.Context, provider, content string) (map[string]string, error)
}

// Answer is the parsed model output.
type Answer struct {
	Category string
	Summary  string
	// Raw is the model's answer text before parsing.
	Raw    string
	ChatID string
	// Structured is false when the answer was not the requested JSON and
	// the fallback category was used.
	Structured bool
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages       []chatMessage     `json:"messages"`
	Model          string            `json:"model"`
	ResponseFormat map[string]string `json:"response_format"`
	FallbackFee    float64           `json:"fallbackFee,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error json.RawMessage `json:"error"`
}

// Option configures the Invoker.
type Option func(*Invoker)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(i *Invoker) {
		i.http = hc
	}
}

// WithFallbackFee sets the fee, in OG, the provider may charge when it
// cannot settle the exact amount.
func WithFallbackFee(og float64) Option {
	return func(i *Invoker) {
		i.fallbackFee = og
	}
}

// Invoker calls inference providers.
type Invoker struct {
	signer      Signer
	http        *http.Client
	fallbackFee float64
}

// NewInvoker creates an Invoker.
func NewInvoker(signer Signer, opts ...Option) *Invoker {
	i := &Invoker{
		signer:      signer,
		http:        &http.Client{Timeout: 2 * time.Minute},
		fallbackFee: 0.01,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke asks the selected provider for a category and summary of content.
// Unstructured answers are not an error: they come back with the default
// category and the raw text as summary.
func (i *Invoker) Invoke(ctx context.Context, sel provider.Selection, fileName, content string) (Answer, error) {
	log := zap.L().With(
		zap.String("component", "inference"),
		zap.String("provider", sel.Provider),
		zap.String("file", fileName),
	)

	prompt := BuildPrompt(content)
	headers, err := i.signer.RequestHeaders(ctx, sel.Provider, prompt)
	if err != nil {
		return Answer{}, eris.Wrap(err, "inference: request headers")
	}

	payload, err := json.Marshal(chatRequest{
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Model:          sel.Model,
		ResponseFormat: map[string]string{"type": "json_object"},
		FallbackFee:    i.fallbackFee,
	})
	if err != nil {
		return Answer{}, eris.Wrap(err, "inference: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(sel.Endpoint, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Answer{}, eris.Wrap(err, "inference: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := i.http.Do(req)
	if err != nil {
		return Answer{}, eris.Wrap(err, "inference: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Answer{}, eris.Wrap(err, "inference: read response")
	}
	log.Debug("inference: response received", zap.Int("status", resp.StatusCode), zap.Duration("elapsed", time.Since(start)))

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return Answer{}, eris.Wrapf(ErrMalformedResponse, "status %d, body: %s", resp.StatusCode, excerpt(body))
	}
	if len(cr.Choices) == 0 {
		return Answer{}, eris.Wrapf(ErrProviderError, "%s", providerMessage(cr.Error))
	}

	raw := cr.Choices[0].Message.Content
	category, summary, ok := ParseAnswer(raw)
	if !ok {
		log.Warn("inference: answer is not structured JSON, using fallback category")
	}
	return Answer{
		Category:   category,
		Summary:    summary,
		Raw:        raw,
		ChatID:     cr.ID,
		Structured: ok,
	}, nil
}

// ParseAnswer extracts category and summary from the model's answer text.
// When the text is not a JSON object it returns the default category, the
// raw text as summary, and ok=false. Missing fields fall back the same way.
func ParseAnswer(raw string) (category, summary string, ok bool) {
	var parsed struct {
		Category *string `json:"category"`
		Summary  *string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		return model.DefaultCategory, raw, false
	}

	category, summary = model.DefaultCategory, raw
	if parsed.Category != nil {
		category = *parsed.Category
	}
	if parsed.Summary != nil {
		summary = *parsed.Summary
	}
	return category, summary, true
}

// stripCodeFence removes a surrounding markdown code fence, which some
// models add despite the JSON response format.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(t), "```")
}

func excerpt(body []byte) string {
	if len(body) <= excerptLen {
		return string(body)
	}
	return strings.ToValidUTF8(string(body[:excerptLen]), "")
}

func providerMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "no choices returned"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
