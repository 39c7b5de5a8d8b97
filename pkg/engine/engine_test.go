package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptsmith/scriptsmith/pkg/apperr"
	"github.com/scriptsmith/scriptsmith/pkg/audit"
	"github.com/scriptsmith/scriptsmith/pkg/cache"
	"github.com/scriptsmith/scriptsmith/pkg/model"
	"github.com/scriptsmith/scriptsmith/pkg/policy"
	"github.com/scriptsmith/scriptsmith/pkg/provider"
)

type stubProvider struct {
	name    string
	content string
	err     error
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) GenerateCode(ctx context.Context, prompt string, language model.Language) (*provider.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &provider.Response{Content: s.content, Provider: s.name}, nil
}
func (s *stubProvider) GenerateText(ctx context.Context, prompt string) (*provider.Response, error) {
	return &provider.Response{Content: s.content, Provider: s.name}, nil
}
func (s *stubProvider) HealthProbe(ctx context.Context) error { return nil }
func (s *stubProvider) Config() provider.Config               { return provider.Config{Name: s.name, Priority: 1} }
func (s *stubProvider) Enabled() bool                         { return true }
func (s *stubProvider) SetEnabled(bool)                       {}
func (s *stubProvider) Priority() int                         { return 1 }

func newTestEngine(t *testing.T, prov provider.Provider) *Engine {
	t.Helper()
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	policies, err := policy.NewStore("")
	require.NoError(t, err)
	auditSink, err := audit.NewSink(t.TempDir())
	require.NoError(t, err)
	pool := provider.NewPool(prov)
	return New(c, policies, pool, nil, auditSink)
}

func TestRun_GeneratesAndCachesNewScript(t *testing.T) {
	prov := &stubProvider{name: "openai", content: "def add(a, b):\n    return a + b\n"}
	e := newTestEngine(t, prov)

	resp, err := e.Run(context.Background(), model.Request{Prompt: "write an add function", Language: model.LanguagePython})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Contains(t, resp.Code, "def add")
	assert.Equal(t, "openai", resp.Provider)
}

func TestRun_SecondCallIsServedFromCache(t *testing.T) {
	prov := &stubProvider{name: "openai", content: "def add(a, b):\n    return a + b\n"}
	e := newTestEngine(t, prov)

	req := model.Request{Prompt: "write an add function", Language: model.LanguagePython}
	first, err := e.Run(context.Background(), req)
	require.NoError(t, err)

	second, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.ScriptID, second.ScriptID)
	assert.Equal(t, int64(1), second.CacheHitCount)
}

func TestRun_RejectsDangerousCodeAsSecurityError(t *testing.T) {
	prov := &stubProvider{name: "openai", content: "import os\nos.system('rm -rf /')\n"}
	e := newTestEngine(t, prov)

	_, err := e.Run(context.Background(), model.Request{Prompt: "delete everything", Language: model.LanguagePython})
	require.Error(t, err)

	var secErr *SecurityError
	require.ErrorAs(t, err, &secErr)
	assert.NotEmpty(t, secErr.Violations)
	assert.Equal(t, apperr.KindSecurityViolation, apperr.KindOf(err))
}

func TestRun_RejectsEmptyPrompt(t *testing.T) {
	prov := &stubProvider{name: "openai", content: "x = 1"}
	e := newTestEngine(t, prov)

	_, err := e.Run(context.Background(), model.Request{Prompt: "", Language: model.LanguagePython})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))
}

func TestRun_RejectsUnsupportedLanguage(t *testing.T) {
	prov := &stubProvider{name: "openai", content: "x = 1"}
	e := newTestEngine(t, prov)

	_, err := e.Run(context.Background(), model.Request{Prompt: "hi", Language: model.Language("cobol")})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))
}

func TestRun_RejectsExecuteWithoutSandbox(t *testing.T) {
	prov := &stubProvider{name: "openai", content: "print('hi')"}
	e := newTestEngine(t, prov)

	_, err := e.Run(context.Background(), model.Request{Prompt: "print hi", Language: model.LanguagePython, Execute: true})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))
}

func TestRun_ProviderFailurePropagates(t *testing.T) {
	prov := &stubProvider{name: "openai", err: apperr.New(apperr.KindProviderFailure, "boom")}
	e := newTestEngine(t, prov)

	_, err := e.Run(context.Background(), model.Request{Prompt: "write something", Language: model.LanguagePython})
	require.Error(t, err)
	assert.Equal(t, apperr.KindProviderFailure, apperr.KindOf(err))
}
