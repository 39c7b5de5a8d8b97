package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptsmith/scriptsmith/pkg/model"
)

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	s, err := NewSink(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLogEvent_StampsIDAndTimestamp(t *testing.T) {
	s := newTestSink(t)
	err := s.LogEvent(model.AuditEvent{EventType: model.EventScriptGenerated})
	require.NoError(t, err)

	events, err := s.QueryEvents(QueryFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].EventID)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestLogScriptGeneration_SetsDetails(t *testing.T) {
	s := newTestSink(t)
	require.NoError(t, s.LogScriptGeneration("artifact-1", "write a script", model.LanguagePython, "openai"))

	events, err := s.QueryEvents(QueryFilter{EventTypes: []string{model.EventScriptGenerated}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "artifact-1", events[0].ArtifactID)
	assert.Equal(t, "python", events[0].Details["language"])
}

func TestLogSecurityViolation_WritesViolationsFile(t *testing.T) {
	s := newTestSink(t)
	violations := []model.Violation{{RuleName: "dangerous_import", Message: "os import blocked", Severity: "error"}}
	require.NoError(t, s.LogSecurityViolation("artifact-2", violations))

	data, err := readLines(filepath.Join(s.dir, "violations.jsonl"))
	require.NoError(t, err)
	assert.Len(t, data, 1)
}

func TestStats_CountsEachEventType(t *testing.T) {
	s := newTestSink(t)
	require.NoError(t, s.LogScriptGeneration("a1", "p", model.LanguagePython, "openai"))
	require.NoError(t, s.LogScriptExecution("a1", model.ExecutionReport{Success: true}))
	require.NoError(t, s.LogSecurityViolation("a1", []model.Violation{{RuleName: "x"}}))
	require.NoError(t, s.LogError("a1", "E1", "boom"))

	stats := s.Stats()
	assert.Equal(t, int64(4), stats.TotalEvents)
	assert.Equal(t, int64(1), stats.ScriptGenerations)
	assert.Equal(t, int64(1), stats.ScriptExecutions)
	assert.Equal(t, int64(1), stats.SecurityViolations)
	assert.Equal(t, int64(1), stats.Errors)
}

func TestQueryEvents_FiltersByArtifactID(t *testing.T) {
	s := newTestSink(t)
	require.NoError(t, s.LogScriptGeneration("a1", "p", model.LanguagePython, "openai"))
	require.NoError(t, s.LogScriptGeneration("a2", "p", model.LanguagePython, "openai"))

	events, err := s.QueryEvents(QueryFilter{ArtifactID: "a2"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a2", events[0].ArtifactID)
}

func TestQueryEvents_NewestFirst(t *testing.T) {
	s := newTestSink(t)
	require.NoError(t, s.LogEvent(model.AuditEvent{EventType: "x", Timestamp: time.Now().Add(-time.Hour)}))
	require.NoError(t, s.LogEvent(model.AuditEvent{EventType: "x", Timestamp: time.Now()}))

	events, err := s.QueryEvents(QueryFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Timestamp.After(events[1].Timestamp))
}

func TestQueryEvents_MissingFileReturnsEmptyNotError(t *testing.T) {
	s, err := NewSink(filepath.Join(t.TempDir(), "nested"))
	require.NoError(t, err)
	// NewSink does not create the audit file (it is created lazily on first
	// append), so nothing has been written yet.
	events, err := s.QueryEvents(QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestQueryEvents_RespectsLimit(t *testing.T) {
	s := newTestSink(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.LogEvent(model.AuditEvent{EventType: "x"}))
	}
	events, err := s.QueryEvents(QueryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
