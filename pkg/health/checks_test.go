package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptsmith/scriptsmith/pkg/cache"
	"github.com/scriptsmith/scriptsmith/pkg/model"
	"github.com/scriptsmith/scriptsmith/pkg/policy"
	"github.com/scriptsmith/scriptsmith/pkg/provider"
)

func TestNewCacheCheck_ReportsHealthy(t *testing.T) {
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)

	check := NewCacheCheck(c)
	status, details, err := check.Perform(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, status)
	assert.Contains(t, details, "total_scripts")
}

type stubHealthProvider struct {
	name    string
	healthy bool
}

func (s *stubHealthProvider) Name() string { return s.name }
func (s *stubHealthProvider) GenerateCode(ctx context.Context, prompt string, language model.Language) (*provider.Response, error) {
	return nil, nil
}
func (s *stubHealthProvider) GenerateText(ctx context.Context, prompt string) (*provider.Response, error) {
	return nil, nil
}
func (s *stubHealthProvider) HealthProbe(ctx context.Context) error {
	if s.healthy {
		return nil
	}
	return assert.AnError
}
func (s *stubHealthProvider) Config() provider.Config { return provider.Config{Name: s.name, Priority: 1} }
func (s *stubHealthProvider) Enabled() bool           { return true }
func (s *stubHealthProvider) SetEnabled(bool)         {}
func (s *stubHealthProvider) Priority() int           { return 1 }

func TestNewProvidersCheck_UnhealthyWhenNoneAvailable(t *testing.T) {
	pool := provider.NewPool(&stubHealthProvider{name: "openai", healthy: false})
	check := NewProvidersCheck(pool)

	status, _, err := check.Perform(context.Background())
	assert.Equal(t, StatusUnhealthy, status)
	assert.Error(t, err)
}

func TestNewSandboxCheck_HealthyWhenNilRunner(t *testing.T) {
	check := NewSandboxCheck(nil)
	status, details, err := check.Perform(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, status)
	assert.Equal(t, false, details["configured"])
}

func TestNewPoliciesCheck_DegradedWhenDirMissing(t *testing.T) {
	store, err := policy.NewStore("")
	require.NoError(t, err)

	check := NewPoliciesCheck(store, "/nonexistent/policies/dir", "moderate")
	status, details, err := check.Perform(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, status)
	assert.Contains(t, details, "error")
}

func TestNewPoliciesCheck_HealthyWhenDirExists(t *testing.T) {
	store, err := policy.NewStore("")
	require.NoError(t, err)
	dir := t.TempDir()

	check := NewPoliciesCheck(store, dir, "moderate")
	status, details, err := check.Perform(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, status)
	assert.Equal(t, "moderate", details["default_policy"])
}
