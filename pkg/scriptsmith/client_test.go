package scriptsmith

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptsmith/scriptsmith/pkg/api"
	"github.com/scriptsmith/scriptsmith/pkg/apperr"
	"github.com/scriptsmith/scriptsmith/pkg/audit"
	"github.com/scriptsmith/scriptsmith/pkg/cache"
	"github.com/scriptsmith/scriptsmith/pkg/engine"
	"github.com/scriptsmith/scriptsmith/pkg/health"
	"github.com/scriptsmith/scriptsmith/pkg/model"
	"github.com/scriptsmith/scriptsmith/pkg/policy"
	"github.com/scriptsmith/scriptsmith/pkg/provider"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubProvider always returns a fixed script, mirroring pkg/api's test stub.
type stubProvider struct{ code string }

func (p *stubProvider) Name() string { return "stub" }
func (p *stubProvider) GenerateCode(ctx context.Context, prompt string, language model.Language) (*provider.Response, error) {
	return &provider.Response{Content: p.code}, nil
}
func (p *stubProvider) GenerateText(ctx context.Context, prompt string) (*provider.Response, error) {
	return &provider.Response{Content: p.code}, nil
}
func (p *stubProvider) HealthProbe(ctx context.Context) error { return nil }
func (p *stubProvider) Config() provider.Config               { return provider.Config{Name: "stub", Priority: 1} }
func (p *stubProvider) Enabled() bool                         { return true }
func (p *stubProvider) SetEnabled(bool)                       {}
func (p *stubProvider) Priority() int                         { return 1 }

// newTestBackend spins up a real pkg/api server backed by an in-memory
// engine, the same wiring server_test.go uses, so this package's client is
// exercised against the real HTTP surface rather than a hand-rolled fake.
func newTestBackend(t *testing.T) *httptest.Server {
	t.Helper()
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	store, err := policy.NewStore("")
	require.NoError(t, err)
	pool := provider.NewPool(&stubProvider{code: "def main():\n    print('hi')\n\nmain()\n"})
	sink, err := audit.NewSink(t.TempDir())
	require.NoError(t, err)

	eng := engine.New(c, store, pool, nil, sink)
	checker := health.NewChecker(health.NewCacheCheck(c), health.NewProvidersCheck(pool))
	router := api.NewServer(eng, checker).Router()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_RunGeneratesAndCachesScript(t *testing.T) {
	backend := newTestBackend(t)
	client := NewClient(backend.URL, nil)

	req := model.Request{Prompt: "print hello", Language: model.LanguagePython}

	first, err := client.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.NotEmpty(t, first.ScriptID)

	second, err := client.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.ScriptID, second.ScriptID)
}

func TestClient_RunMissingPromptReturnsInvalidRequestError(t *testing.T) {
	backend := newTestBackend(t)
	client := NewClient(backend.URL, nil)

	_, err := client.Run(context.Background(), model.Request{Language: model.LanguagePython})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))
}

func TestClient_ListAndShowRoundTrip(t *testing.T) {
	backend := newTestBackend(t)
	client := NewClient(backend.URL, nil)

	run, err := client.Run(context.Background(), model.Request{Prompt: "print hello", Language: model.LanguagePython})
	require.NoError(t, err)

	list, err := client.List(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)

	show, err := client.Show(context.Background(), run.ScriptID, true)
	require.NoError(t, err)
	assert.Equal(t, run.ScriptID, show.ScriptID)
	assert.NotEmpty(t, show.Code)
}

func TestClient_ShowUnknownScriptIDReturnsNotFound(t *testing.T) {
	backend := newTestBackend(t)
	client := NewClient(backend.URL, nil)

	_, err := client.Show(context.Background(), "does-not-exist", true)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestClient_ClearAllRemovesEverything(t *testing.T) {
	backend := newTestBackend(t)
	client := NewClient(backend.URL, nil)

	_, err := client.Run(context.Background(), model.Request{Prompt: "print hello", Language: model.LanguagePython})
	require.NoError(t, err)

	cleared, err := client.Clear(context.Background(), ClearParams{All: true})
	require.NoError(t, err)
	assert.Equal(t, 1, cleared.Removed)

	list, err := client.List(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Total)
}

func TestClient_HealthReportsHealthy(t *testing.T) {
	backend := newTestBackend(t)
	client := NewClient(backend.URL, nil)

	report, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, report.OverallStatus)
}

func TestClient_StatsReportsCounters(t *testing.T) {
	backend := newTestBackend(t)
	client := NewClient(backend.URL, nil)

	_, err := client.Run(context.Background(), model.Request{Prompt: "print hello", Language: model.LanguagePython})
	require.NoError(t, err)

	stats, err := client.Stats(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, stats["cache"])
	assert.NotNil(t, stats["providers"])
}
