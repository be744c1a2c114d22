// Package llm calls a hosted text generation model with a fallback chain.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/gigwatch/internal/indexing/metrics"
)

// DefaultModels is the fallback chain used when none is configured.
var DefaultModels = []string{"gemini-2.0-flash", "gemini-1.5-flash"}

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Models  []string
	Timeout time.Duration
}

// Client generates text with the first model in the chain that answers.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// NewClient creates a client. An empty APIKey yields a client whose
// calls fail with ErrNotConfigured.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  slog.Default().With("component", "llm"),
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate returns the model's text for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if !c.Configured() {
		return "", &Error{Kind: KindNotConfigured, Err: fmt.Errorf("api key missing")}
	}

	var lastErr *Error
	allLimited := true
	for _, model := range c.cfg.Models {
		text, err := c.generate(ctx, model, prompt)
		if err == nil {
			metrics.LLMRequestsTotal.WithLabelValues(model, "ok").Inc()
			return text, nil
		}
		metrics.LLMRequestsTotal.WithLabelValues(model, string(err.Kind)).Inc()
		if err.Kind == KindNotConfigured {
			return "", err
		}
		if ctx.Err() != nil {
			return "", &Error{Kind: KindTransient, Model: model, Err: ctx.Err()}
		}
		c.log.Warn("model failed, trying next", "model", model, "kind", err.Kind, "error", err.Err)
		allLimited = allLimited && err.Kind == KindRateLimited
		lastErr = err
	}

	if allLimited {
		return "", &Error{Kind: KindRateLimited, Model: lastErr.Model, Err: lastErr.Err}
	}
	return "", &Error{Kind: KindTransient, Model: lastErr.Model, Err: fmt.Errorf("all models failed: %w", lastErr.Err)}
}

// GenerateJSON asks for JSON and decodes it leniently into dst. Fields
// the model leaves out keep the values dst already holds.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, dst any) error {
	text, err := c.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	if err := DecodeLenient(text, dst); err != nil {
		return &Error{Kind: KindTransient, Err: fmt.Errorf("decode model output: %w", err)}
	}
	return nil
}

func (c *Client) generate(ctx context.Context, model, prompt string) (string, *Error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return "", &Error{Kind: KindTransient, Model: model, Err: err}
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.cfg.BaseURL, url.PathEscape(model), url.QueryEscape(c.cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindTransient, Model: model, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Kind: KindTransient, Model: model, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &Error{Kind: KindTransient, Model: model, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &Error{Kind: KindRateLimited, Model: model, Err: fmt.Errorf("http 429")}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &Error{Kind: KindNotConfigured, Model: model, Err: fmt.Errorf("http %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return "", &Error{Kind: KindTransient, Model: model, Err: fmt.Errorf("http %d: %s", resp.StatusCode, truncate(raw, 200))}
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &Error{Kind: KindTransient, Model: model, Err: fmt.Errorf("parse response: %w", err)}
	}
	var sb strings.Builder
	for _, cand := range out.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}
	if sb.Len() == 0 {
		return "", &Error{Kind: KindTransient, Model: model, Err: fmt.Errorf("empty response")}
	}
	return sb.String(), nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
