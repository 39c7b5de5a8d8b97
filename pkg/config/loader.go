package config

import (
	"log/slog"
	"os"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/scriptsmith/scriptsmith/pkg/apperr"
)

// Load builds the final Config: defaults, then any .env file found along
// the default search path, then an explicit YAML config file (or, absent
// one, the first match among the default search locations), then
// validation. configFile may be empty to skip straight to the
// default-location search, mirroring ConfigManager.__init__(config_file).
func Load(configFile string) (*Config, error) {
	log := slog.With("component", "config")

	for _, path := range defaultEnvFiles() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			log.Warn("failed to load .env file", "path", path, "error", err)
			continue
		}
		log.Info("loaded environment file", "path", path)
	}

	cfg := Defaults()

	resolved := configFile
	if resolved == "" {
		for _, candidate := range defaultConfigLocations() {
			if _, err := os.Stat(candidate); err == nil {
				resolved = candidate
				break
			}
		}
	}

	if resolved != "" {
		if err := mergeFile(cfg, resolved); err != nil {
			return nil, err
		}
		log.Info("loaded config file", "path", resolved)
	}

	validate(cfg, log)
	return cfg, nil
}

// mergeFile reads a YAML file, expands ${VAR} references against the
// environment, and merges it over cfg with file values taking precedence —
// mirroring tarsy's mergo.WithOverride usage in loader.go, applied here to
// the whole tree instead of just one section.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "read config file "+path, err)
	}
	data = ExpandEnv(data)

	var fromFile Config
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return apperr.Wrap(apperr.KindInvalidRequest, "parse config file "+path, err)
	}

	if err := mergo.Merge(cfg, fromFile, mergo.WithOverride); err != nil {
		return apperr.Wrap(apperr.KindInternal, "merge config file "+path, err)
	}
	return nil
}

// validLogLevels mirrors config.py's fixed log-level validation list.
var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

// validate creates any missing configured directories and clamps invalid
// numeric or enum settings back to their defaults, logging a warning for
// each, mirroring ConfigManager._validate_config.
func validate(cfg *Config, log *slog.Logger) {
	for _, dir := range []string{cfg.Cache.Dir, cfg.Security.PoliciesDir, cfg.Security.AuditLogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn("failed to create configured directory", "dir", dir, "error", err)
		}
	}

	defaults := Defaults()

	if cfg.Cache.TTLSeconds <= 0 {
		log.Warn("invalid cache.ttl_seconds, using default", "value", cfg.Cache.TTLSeconds, "default", defaults.Cache.TTLSeconds)
		cfg.Cache.TTLSeconds = defaults.Cache.TTLSeconds
	}
	if cfg.Sandbox.MemoryLimitMB <= 0 {
		log.Warn("invalid sandbox.memory_limit_mb, using default", "value", cfg.Sandbox.MemoryLimitMB, "default", defaults.Sandbox.MemoryLimitMB)
		cfg.Sandbox.MemoryLimitMB = defaults.Sandbox.MemoryLimitMB
	}
	if cfg.Sandbox.CPULimitSeconds <= 0 {
		log.Warn("invalid sandbox.cpu_limit_seconds, using default", "value", cfg.Sandbox.CPULimitSeconds, "default", defaults.Sandbox.CPULimitSeconds)
		cfg.Sandbox.CPULimitSeconds = defaults.Sandbox.CPULimitSeconds
	}
	if cfg.Sandbox.ExecutionTimeoutSeconds <= 0 {
		log.Warn("invalid sandbox.execution_timeout_seconds, using default", "value", cfg.Sandbox.ExecutionTimeoutSeconds, "default", defaults.Sandbox.ExecutionTimeoutSeconds)
		cfg.Sandbox.ExecutionTimeoutSeconds = defaults.Sandbox.ExecutionTimeoutSeconds
	}
	if cfg.LLM.MaxTokens <= 0 {
		log.Warn("invalid llm.max_tokens, using default", "value", cfg.LLM.MaxTokens, "default", defaults.LLM.MaxTokens)
		cfg.LLM.MaxTokens = defaults.LLM.MaxTokens
	}
	if cfg.LLM.RetryAttempts <= 0 {
		log.Warn("invalid llm.retry_attempts, using default", "value", cfg.LLM.RetryAttempts, "default", defaults.LLM.RetryAttempts)
		cfg.LLM.RetryAttempts = defaults.LLM.RetryAttempts
	}

	if !validLogLevels[cfg.Logging.Level] {
		log.Warn("invalid logging.level, using default", "value", cfg.Logging.Level, "default", defaults.Logging.Level)
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		log.Warn("invalid logging.format, using default", "value", cfg.Logging.Format, "default", defaults.Logging.Format)
		cfg.Logging.Format = defaults.Logging.Format
	}
}
