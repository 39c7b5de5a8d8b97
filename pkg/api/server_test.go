package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// stubProvider always returns a fixed script, used instead of hitting a
// real LLM backend in tests — the same role a fake transport would play in
// the teacher's llm client tests.
type stubProvider struct {
	code string
}

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

func newTestServer(t *testing.T) *Server {
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
	return NewServer(eng, checker)
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRun_GeneratesAndCachesScript(t *testing.T) {
	router := newTestServer(t).Router()

	reqBody := model.Request{Prompt: "print hello", Language: model.LanguagePython}
	first := doRequest(router, http.MethodPost, "/api/run", reqBody)
	require.Equal(t, http.StatusOK, first.Code)

	var firstResp runResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))
	assert.False(t, firstResp.Cached)
	assert.NotEmpty(t, firstResp.ScriptID)

	second := doRequest(router, http.MethodPost, "/api/run", reqBody)
	require.Equal(t, http.StatusOK, second.Code)

	var secondResp runResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))
	assert.True(t, secondResp.Cached)
	assert.Equal(t, firstResp.ScriptID, secondResp.ScriptID)
}

func TestRun_MissingPromptIsInvalidRequest(t *testing.T) {
	router := newTestServer(t).Router()

	rec := doRequest(router, http.MethodPost, "/api/run", model.Request{Language: model.LanguagePython})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "invalid_request", errResp.Error)
}

func TestShow_UnknownScriptIDIsNotFound(t *testing.T) {
	router := newTestServer(t).Router()

	rec := doRequest(router, http.MethodGet, "/api/scripts/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestList_ReturnsGeneratedScript(t *testing.T) {
	router := newTestServer(t).Router()

	doRequest(router, http.MethodPost, "/api/run", model.Request{Prompt: "print hello", Language: model.LanguagePython})

	rec := doRequest(router, http.MethodGet, "/api/scripts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listResp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Equal(t, 1, listResp.Total)
}

func TestClear_AllRemovesEverything(t *testing.T) {
	router := newTestServer(t).Router()
	doRequest(router, http.MethodPost, "/api/run", model.Request{Prompt: "print hello", Language: model.LanguagePython})

	rec := doRequest(router, http.MethodPost, "/api/scripts/clear", clearRequest{All: true})
	require.Equal(t, http.StatusOK, rec.Code)

	var clearResp clearResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &clearResp))
	assert.Equal(t, 1, clearResp.Removed)

	listRec := doRequest(router, http.MethodGet, "/api/scripts", nil)
	var listResp listResponse
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listResp))
	assert.Equal(t, 0, listResp.Total)
}

func TestHealth_ReportsHealthy(t *testing.T) {
	router := newTestServer(t).Router()

	rec := doRequest(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, health.StatusHealthy, report.OverallStatus)
}

func TestStats_ReportsCacheAndProviderCounters(t *testing.T) {
	router := newTestServer(t).Router()
	doRequest(router, http.MethodPost, "/api/run", model.Request{Prompt: "print hello", Language: model.LanguagePython})

	rec := doRequest(router, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Cache.TotalScripts)
	assert.EqualValues(t, 1, stats.Providers.TotalRequests)
}

func TestMetrics_ReturnsPrometheusExposition(t *testing.T) {
	router := newTestServer(t).Router()

	rec := doRequest(router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scriptsmith_cache_hits_total")
}
