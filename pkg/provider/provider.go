// Package provider implements the LLM Provider Pool: a priority-ordered set
// of OpenAI-compatible HTTP backends with lazy health probing and fallback
// selection. Grounded on capibara's llm_providers/base.py and
// llm_providers/fallback_manager.py (_examples/original_source), adapted to
// Go's explicit interfaces and context.Context cancellation.
package provider

import (
	"context"
	"time"

	"github.com/scriptsmith/scriptsmith/pkg/model"
)

// Config is one provider's static configuration.
type Config struct {
	Name           string                 `yaml:"name" json:"name" validate:"required"`
	APIKey         string                 `yaml:"-" json:"-"`
	APIKeyEnv      string                 `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	BaseURL        string                 `yaml:"base_url" json:"base_url" validate:"required,url"`
	Model          string                 `yaml:"model" json:"model" validate:"required"`
	MaxTokens      int                    `yaml:"max_tokens" json:"max_tokens"`
	Temperature    float64                `yaml:"temperature" json:"temperature"`
	TimeoutSeconds int                    `yaml:"timeout_seconds" json:"timeout_seconds"`
	RetryAttempts  int                    `yaml:"retry_attempts" json:"retry_attempts"`
	Priority       int                    `yaml:"priority" json:"priority"`
	Enabled        bool                   `yaml:"enabled" json:"enabled"`
	Metadata       map[string]interface{} `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Defaults applied to a Config loaded without explicit values, mirroring
// LLMProviderConfig's Field(...) defaults in base.py.
const (
	DefaultMaxTokens      = 4000
	DefaultTemperature    = 0.7
	DefaultTimeoutSeconds = 30
	DefaultRetryAttempts  = 3
	DefaultPriority       = 1
)

// ApplyDefaults fills zero-valued fields with the package defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.Priority == 0 {
		c.Priority = DefaultPriority
	}
}

// Timeout returns the provider's per-call timeout as a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Response is the normalized result of a generation call.
type Response struct {
	Content  string                 `json:"content"`
	Model    string                 `json:"model"`
	Provider string                 `json:"provider"`
	Usage    map[string]interface{} `json:"usage,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Provider is the capability surface every LLM backend implements.
type Provider interface {
	// Name is the provider's registry key.
	Name() string
	// GenerateCode asks the provider to write code in the given language for prompt.
	GenerateCode(ctx context.Context, prompt string, language model.Language) (*Response, error)
	// GenerateText asks the provider for a free-text completion of prompt.
	GenerateText(ctx context.Context, prompt string) (*Response, error)
	// HealthProbe reports whether the provider is currently reachable.
	HealthProbe(ctx context.Context) error
	// Config exposes the provider's static configuration.
	Config() Config
	// Enabled reports whether the provider is currently enabled for selection.
	Enabled() bool
	// SetEnabled toggles the provider's availability for selection.
	SetEnabled(bool)
	// Priority reports the provider's fallback-ordering priority (lower = tried first).
	Priority() int
}
