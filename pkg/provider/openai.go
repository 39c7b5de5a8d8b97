package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"

	"github.com/scriptsmith/scriptsmith/pkg/apperr"
	"github.com/scriptsmith/scriptsmith/pkg/model"
	"github.com/scriptsmith/scriptsmith/pkg/version"
)

// OpenAICompatible is a Provider backed by any chat-completions endpoint
// that speaks the OpenAI wire format — this covers both OpenAI itself and
// Groq, which exposes the identical /chat/completions schema.
type OpenAICompatible struct {
	cfg     Config
	client  *http.Client
	enabled atomic.Bool
}

// NewOpenAICompatible constructs a provider from cfg, applying defaults.
func NewOpenAICompatible(cfg Config) *OpenAICompatible {
	cfg.ApplyDefaults()
	p := &OpenAICompatible{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
	}
	p.enabled.Store(cfg.Enabled)
	return p
}

func (p *OpenAICompatible) Name() string    { return p.cfg.Name }
func (p *OpenAICompatible) Config() Config  { return p.cfg }
func (p *OpenAICompatible) Enabled() bool   { return p.enabled.Load() }
func (p *OpenAICompatible) SetEnabled(v bool) { p.enabled.Store(v) }
func (p *OpenAICompatible) Priority() int   { return p.cfg.Priority }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// GenerateCode asks the provider to write code in language for prompt.
func (p *OpenAICompatible) GenerateCode(ctx context.Context, prompt string, language model.Language) (*Response, error) {
	system := fmt.Sprintf("You are an expert %s developer. Respond with code only, no explanation.", language)
	return p.complete(ctx, system, prompt)
}

// GenerateText asks the provider for a free-text completion of prompt.
func (p *OpenAICompatible) GenerateText(ctx context.Context, prompt string) (*Response, error) {
	return p.complete(ctx, "You are a helpful assistant.", prompt)
}

func (p *OpenAICompatible) complete(ctx context.Context, system, user string) (*Response, error) {
	reqBody := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	}

	var result *chatResponse
	op := func() error {
		resp, err := p.doRequest(ctx, reqBody)
		if err != nil {
			return err
		}
		result = resp
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.cfg.RetryAttempts))
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, apperr.WrapRetryable(apperr.KindProviderFailure, "provider "+p.cfg.Name+" request failed", err)
	}

	if len(result.Choices) == 0 {
		return nil, apperr.New(apperr.KindProviderFailure, "provider "+p.cfg.Name+" returned no choices")
	}

	return &Response{
		Content:  result.Choices[0].Message.Content,
		Model:    result.Model,
		Provider: p.cfg.Name,
		Usage: map[string]interface{}{
			"prompt_tokens":     result.Usage.PromptTokens,
			"completion_tokens": result.Usage.CompletionTokens,
			"total_tokens":      result.Usage.TotalTokens,
		},
	}, nil
}

func (p *OpenAICompatible) doRequest(ctx context.Context, body chatRequest) (*chatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("User-Agent", version.Full())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err // transient: retry
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("provider %s: status %d: %s", p.cfg.Name, resp.StatusCode, string(raw))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("provider %s: status %d: %s", p.cfg.Name, resp.StatusCode, string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("provider %s: decode response: %w", p.cfg.Name, err))
	}
	return &parsed, nil
}

// HealthProbe issues a GET request to the provider's /models endpoint to
// confirm reachability.
func (p *OpenAICompatible) HealthProbe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("User-Agent", version.Full())

	resp, err := p.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindProviderFailure, "health probe for "+p.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apperr.New(apperr.KindProviderFailure, fmt.Sprintf("provider %s unhealthy: status %d", p.cfg.Name, resp.StatusCode))
	}
	return nil
}
