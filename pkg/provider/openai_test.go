package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptsmith/scriptsmith/pkg/model"
)

func TestOpenAICompatible_GenerateCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		resp := chatResponse{Model: "gpt-test"}
		resp.Choices = []chatChoice{{Message: chatMessage{Role: "assistant", Content: "print('hi')"}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenAICompatible(Config{Name: "openai", BaseURL: srv.URL, Model: "gpt-test", APIKey: "test-key"})
	resp, err := p.GenerateCode(context.Background(), "print hello", model.LanguagePython)
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", resp.Content)
	assert.Equal(t, "openai", resp.Provider)
}

func TestOpenAICompatible_HealthProbe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewOpenAICompatible(Config{Name: "openai", BaseURL: srv.URL, Model: "gpt-test"})
	assert.NoError(t, p.HealthProbe(context.Background()))
}

func TestOpenAICompatible_HealthProbe_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenAICompatible(Config{Name: "openai", BaseURL: srv.URL, Model: "gpt-test"})
	assert.Error(t, p.HealthProbe(context.Background()))
}

func TestOpenAICompatible_GenerateCode_PermanentErrorNoRetryLoop(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewOpenAICompatible(Config{Name: "openai", BaseURL: srv.URL, Model: "gpt-test", RetryAttempts: 3})
	_, err := p.GenerateCode(context.Background(), "prompt", model.LanguagePython)
	require.Error(t, err)
	assert.Equal(t, 1, calls, "4xx other than 429 must not be retried")
}
