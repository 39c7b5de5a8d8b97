package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_FillsEveryAmbientSection(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "moderate", cfg.Security.DefaultPolicy)
	assert.Equal(t, 3600, cfg.Cache.TTLSeconds)
	assert.Equal(t, 256, cfg.Sandbox.MemoryLimitMB)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "openai", cfg.LLM.DefaultProvider)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "moderate", cfg.Security.DefaultPolicy)
}

func TestLoad_ExplicitFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scriptsmith.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
security:
  default_policy: strict
sandbox:
  memory_limit_mb: 512
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "strict", cfg.Security.DefaultPolicy)
	assert.Equal(t, 512, cfg.Sandbox.MemoryLimitMB)
	// Unset fields still carry their built-in defaults.
	assert.Equal(t, "openai", cfg.LLM.DefaultProvider)
}

func TestLoad_CreatesConfiguredDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scriptsmith.yaml")
	cacheDir := filepath.Join(dir, "cache")
	policiesDir := filepath.Join(dir, "policies")
	auditDir := filepath.Join(dir, "audit")
	require.NoError(t, os.WriteFile(path, []byte(`
cache:
  dir: `+cacheDir+`
security:
  policies_dir: `+policiesDir+`
  audit_log_dir: `+auditDir+`
`), 0o644))

	_, err := Load(path)
	require.NoError(t, err)

	for _, dir := range []string{cacheDir, policiesDir, auditDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLoad_ClampsInvalidNumericSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scriptsmith.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache:
  ttl_seconds: -1
sandbox:
  memory_limit_mb: 0
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Defaults().Cache.TTLSeconds, cfg.Cache.TTLSeconds)
	assert.Equal(t, Defaults().Sandbox.MemoryLimitMB, cfg.Sandbox.MemoryLimitMB)
}

func TestLoad_ClampsInvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scriptsmith.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: verbose
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestProviderConfigs_ResolvesAPIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-123")
	cfg := Defaults()

	providers := cfg.ProviderConfigs()
	require.Len(t, providers, 2)
	assert.Equal(t, "openai", providers[0].Name)
	assert.Equal(t, "sk-test-123", providers[0].APIKey)
	assert.Equal(t, "groq", providers[1].Name)
}

func TestMergeFile_ExpandsEnvVarsBeforeParsing(t *testing.T) {
	t.Setenv("SCRIPTSMITH_TEST_POLICY", "strict")
	dir := t.TempDir()
	path := filepath.Join(dir, "scriptsmith.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
security:
  default_policy: ${SCRIPTSMITH_TEST_POLICY}
`), 0o644))

	cfg := Defaults()
	require.NoError(t, mergeFile(cfg, path))
	assert.Equal(t, "strict", cfg.Security.DefaultPolicy)
}
