// Package config loads ScriptSmith's layered configuration: built-in
// defaults, then environment variables (optionally sourced from a .env
// file), then an optional YAML config file. Grounded on capibara's
// utils/config.py (_examples/original_source) for the layering order and
// the default-location search, and on tarsy's pkg/config/loader.go
// (_examples/codeready-toolchain-tarsy) for doing that layering with
// gopkg.in/yaml.v3 and dario.cat/mergo instead of hand-rolled merging.
package config

import (
	"os"
	"path/filepath"

	"github.com/scriptsmith/scriptsmith/pkg/provider"
)

// CacheConfig controls the on-disk generated-script cache.
type CacheConfig struct {
	Dir             string `yaml:"dir"`
	TTLSeconds      int    `yaml:"ttl_seconds"`
	MaxSizeMB       int    `yaml:"max_size_mb"`
	CleanupInterval int    `yaml:"cleanup_interval_seconds"`
}

// SecurityConfig controls policy selection and audit logging.
type SecurityConfig struct {
	DefaultPolicy      string `yaml:"default_policy"`
	PoliciesDir        string `yaml:"policies_dir"`
	AuditLogDir        string `yaml:"audit_log_dir"`
	EnableAuditLogging bool   `yaml:"enable_audit_logging"`
}

// SandboxConfig holds fallback resource limits for the container runner.
// They are loaded and validated here but not passed to the runner, which
// takes its limits from the resolved policy only.
type SandboxConfig struct {
	MemoryLimitMB           int  `yaml:"memory_limit_mb"`
	CPULimitSeconds         int  `yaml:"cpu_limit_seconds"`
	ExecutionTimeoutSeconds int  `yaml:"execution_timeout_seconds"`
	NetworkAccess           bool `yaml:"network_access"`
	AllowSubprocess         bool `yaml:"allow_subprocess"`
}

// LoggingConfig controls log/slog's handler.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	BackupCount int    `yaml:"backup_count"`
}

// ProviderCredentials is the YAML/env shape of one LLM provider; it is
// turned into a provider.Config by ProviderConfigs once the API key has
// been resolved from its environment variable.
type ProviderCredentials struct {
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Enabled   bool   `yaml:"enabled"`
	Priority  int    `yaml:"priority"`
}

// LLMConfig controls the provider pool.
type LLMConfig struct {
	DefaultProvider string              `yaml:"default_provider"`
	MaxTokens       int                 `yaml:"max_tokens"`
	Temperature     float64             `yaml:"temperature"`
	TimeoutSeconds  int                 `yaml:"timeout_seconds"`
	RetryAttempts   int                 `yaml:"retry_attempts"`
	OpenAI          ProviderCredentials `yaml:"openai"`
	Groq            ProviderCredentials `yaml:"groq"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// ServerConfig controls the HTTP API's listen address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Config is the fully resolved configuration tree, ready for use by every
// component's constructor. Unlike tarsy's Config, which wraps registries
// built from user-editable agent/chain/MCP-server definitions, this Config
// is a flat settings tree: ScriptSmith has no equivalent multi-agent
// pipeline to register, so there is nothing here to look up by ID.
type Config struct {
	Debug       bool   `yaml:"debug"`
	Environment string `yaml:"environment"`

	Server   ServerConfig   `yaml:"server"`
	Cache    CacheConfig    `yaml:"cache"`
	Security SecurityConfig `yaml:"security"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Logging  LoggingConfig  `yaml:"logging"`
	LLM      LLMConfig      `yaml:"llm"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// defaultHome returns the user's home directory, or "." if it cannot be
// determined — this degrades to relative paths rather than failing,
// mirroring config.py's graceful Path.home() fallback.
func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// Defaults returns the built-in configuration, mirroring the dataclass
// field defaults spread across CacheConfig/SecurityConfig/ContainerConfig/
// LoggingConfig/LLMConfig/MetricsConfig in config.py.
func Defaults() *Config {
	home := defaultHome()
	base := filepath.Join(home, ".scriptsmith")

	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Cache: CacheConfig{
			Dir:             filepath.Join(base, "cache"),
			TTLSeconds:      3600,
			MaxSizeMB:       500,
			CleanupInterval: 3600,
		},
		Security: SecurityConfig{
			DefaultPolicy:      "moderate",
			PoliciesDir:        filepath.Join(base, "policies"),
			AuditLogDir:        filepath.Join(base, "logs", "audit"),
			EnableAuditLogging: true,
		},
		Sandbox: SandboxConfig{
			MemoryLimitMB:           256,
			CPULimitSeconds:         30,
			ExecutionTimeoutSeconds: 60,
			NetworkAccess:           false,
			AllowSubprocess:         false,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			MaxSizeMB:   10,
			BackupCount: 5,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			MaxTokens:       4000,
			Temperature:     0.7,
			TimeoutSeconds:  30,
			RetryAttempts:   3,
			OpenAI: ProviderCredentials{
				APIKeyEnv: "OPENAI_API_KEY",
				BaseURL:   "https://api.openai.com/v1",
				Model:     "gpt-4o-mini",
				Enabled:   true,
				Priority:  1,
			},
			Groq: ProviderCredentials{
				APIKeyEnv: "GROQ_API_KEY",
				BaseURL:   "https://api.groq.com/openai/v1",
				Model:     "llama-3.3-70b-versatile",
				Enabled:   true,
				Priority:  2,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// ProviderConfigs turns the LLM section into the provider.Config values
// NewOpenAICompatible expects, resolving each API key from its configured
// environment variable.
func (c *Config) ProviderConfigs() []provider.Config {
	build := func(name string, creds ProviderCredentials) provider.Config {
		return provider.Config{
			Name:           name,
			APIKey:         os.Getenv(creds.APIKeyEnv),
			APIKeyEnv:      creds.APIKeyEnv,
			BaseURL:        creds.BaseURL,
			Model:          creds.Model,
			MaxTokens:      c.LLM.MaxTokens,
			Temperature:    c.LLM.Temperature,
			TimeoutSeconds: c.LLM.TimeoutSeconds,
			RetryAttempts:  c.LLM.RetryAttempts,
			Priority:       creds.Priority,
			Enabled:        creds.Enabled,
		}
	}
	return []provider.Config{
		build("openai", c.LLM.OpenAI),
		build("groq", c.LLM.Groq),
	}
}
