package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "braced substitution",
			input: "api_key: ${API_KEY}",
			env:   map[string]string{"API_KEY": "secret123"},
			want:  "api_key: secret123",
		},
		{
			name:  "bare substitution",
			input: "host: $HOST",
			env:   map[string]string{"HOST": "example.com"},
			want:  "host: example.com",
		},
		{
			name:  "multiple substitutions in one line",
			input: "url: ${PROTOCOL}://${HOST}:${PORT}",
			env: map[string]string{
				"PROTOCOL": "https",
				"HOST":     "example.com",
				"PORT":     "8443",
			},
			want: "url: https://example.com:8443",
		},
		{
			name:  "missing variable expands to empty string",
			input: "token: ${MISSING_VAR}",
			env:   map[string]string{},
			want:  "token: ",
		},
		{
			name:  "no variables passes through unchanged",
			input: "policy: moderate",
			env:   map[string]string{},
			want:  "policy: moderate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			got := ExpandEnv([]byte(tt.input))
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestExpandEnv_ProducesValidYAML(t *testing.T) {
	t.Setenv("API_KEY", "sk-test-123")
	input := []byte(`
host: localhost
port: 8080
api_key: ${API_KEY}
`)
	expanded := ExpandEnv(input)

	var result map[string]any
	err := yaml.Unmarshal(expanded, &result)
	assert.NoError(t, err)
	assert.Equal(t, "sk-test-123", result["api_key"])
}
