package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scriptsmith/scriptsmith/pkg/model"
)

func TestSpecFor_PerLanguageImageAndCommand(t *testing.T) {
	cases := []struct {
		language model.Language
		image    string
		filename string
	}{
		{model.LanguagePython, "python:3.11-slim", "script.py"},
		{model.LanguageJavaScript, "node:18-slim", "script.js"},
		{model.LanguageBash, "alpine:latest", "script.sh"},
		{model.LanguagePowerShell, "mcr.microsoft.com/powershell:latest", "script.ps1"},
	}
	for _, c := range cases {
		spec := specFor(c.language)
		assert.Equal(t, c.image, spec.image)
		assert.Equal(t, c.filename, spec.filename)
		assert.NotEmpty(t, spec.command)
	}
}

func TestSpecFor_UnknownLanguageFallsBackToAlpineShell(t *testing.T) {
	spec := specFor(model.Language("ruby"))
	assert.Equal(t, defaultSpec, spec)
	assert.Equal(t, []string{"/bin/sh", "/workspace/script"}, spec.command)
}

func TestCheckResourceLimits_WithinBoundsNoViolations(t *testing.T) {
	limits := model.ResourceLimits{CPUSeconds: 30, MemoryMB: 256}
	violations := checkResourceLimits(128.0, 5000, limits)
	assert.Empty(t, violations)
}

func TestCheckResourceLimits_MemoryExceeded(t *testing.T) {
	limits := model.ResourceLimits{CPUSeconds: 30, MemoryMB: 256}
	violations := checkResourceLimits(300.0, 0, limits)
	assert.Len(t, violations, 1)
	assert.Contains(t, violations[0], "memory limit exceeded")
}

func TestCheckResourceLimits_CPUExceeded(t *testing.T) {
	limits := model.ResourceLimits{CPUSeconds: 10, MemoryMB: 256}
	violations := checkResourceLimits(10.0, 20000, limits)
	assert.Len(t, violations, 1)
	assert.Contains(t, violations[0], "cpu time limit exceeded")
}

func TestCheckResourceLimits_BothExceeded(t *testing.T) {
	limits := model.ResourceLimits{CPUSeconds: 10, MemoryMB: 64}
	violations := checkResourceLimits(128.0, 20000, limits)
	assert.Len(t, violations, 2)
}

func TestNewRunner_Closeable(t *testing.T) {
	r, err := NewRunner()
	if err != nil {
		t.Skipf("no docker client available in this environment: %v", err)
	}
	assert.NoError(t, r.Close())
}
