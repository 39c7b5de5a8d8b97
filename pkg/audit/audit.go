// Package audit is the append-only audit trail: every lifecycle event
// (script generated, script executed, security violation, error) is
// appended as a line of JSON to audit.jsonl, with security violations
// additionally appended to violations.jsonl. Grounded on capibara's
// security/audit_logger.py (_examples/original_source) for the file
// layout, event shape, running statistics counters, and query-with-filters
// behavior.
package audit

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scriptsmith/scriptsmith/pkg/apperr"
	"github.com/scriptsmith/scriptsmith/pkg/model"
)

// Stats mirrors AuditLogger.get_audit_stats's running counters.
type Stats struct {
	TotalEvents        int64  `json:"total_events"`
	SecurityViolations int64  `json:"security_violations"`
	ScriptGenerations  int64  `json:"script_generations"`
	ScriptExecutions   int64  `json:"script_executions"`
	Errors             int64  `json:"errors"`
	LogDirectory       string `json:"log_directory"`
	AuditLogFile       string `json:"audit_log_file"`
	ViolationsLogFile  string `json:"violations_log_file"`
}

// QueryFilter narrows a QueryEvents call.
type QueryFilter struct {
	EventTypes []string
	ArtifactID string
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}

// Sink is the audit trail writer. Safe for concurrent use: each append is
// guarded by a mutex so lines from concurrent requests never interleave.
type Sink struct {
	dir            string
	auditFile      string
	violationsFile string
	mu             sync.Mutex
	stats          Stats
	statsMu        sync.Mutex
	log            *slog.Logger
}

// NewSink creates (if needed) the audit log directory. The two append-only
// log files are opened (and created) on each append, not here.
func NewSink(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "create audit log directory", err)
	}
	s := &Sink{
		dir:            dir,
		auditFile:      filepath.Join(dir, "audit.jsonl"),
		violationsFile: filepath.Join(dir, "violations.jsonl"),
		log:            slog.With("component", "audit_sink"),
	}
	s.stats = Stats{LogDirectory: dir, AuditLogFile: s.auditFile, ViolationsLogFile: s.violationsFile}
	return s, nil
}

// LogEvent appends an audit event, stamping EventID/Timestamp if absent.
func (s *Sink) LogEvent(event model.AuditEvent) error {
	if event.EventID == "" {
		event.EventID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := s.appendJSONLine(s.auditFile, event); err != nil {
		s.log.Error("failed to log audit event", "event_id", event.EventID, "error", err)
		return apperr.Wrap(apperr.KindInternal, "write audit event", err)
	}

	s.updateStats(event)
	s.log.Info("audit event logged", "event_type", event.EventType, "event_id", event.EventID, "artifact_id", event.ArtifactID)

	if event.EventType == model.EventSecurityRejected {
		for _, v := range event.Violations {
			if err := s.appendJSONLine(s.violationsFile, v); err != nil {
				s.log.Warn("failed to write violations log", "error", err)
			}
		}
	}
	return nil
}

// LogScriptGeneration records a script_generated event.
func (s *Sink) LogScriptGeneration(artifactID, prompt string, language model.Language, provider string) error {
	return s.LogEvent(model.AuditEvent{
		EventType:  model.EventScriptGenerated,
		ArtifactID: artifactID,
		Severity:   "info",
		Message:    "Script generated: " + artifactID,
		Details: map[string]interface{}{
			"prompt_length": len(prompt),
			"language":      string(language),
			"provider":      provider,
		},
	})
}

// LogScriptExecution records a script_executed event.
func (s *Sink) LogScriptExecution(artifactID string, report model.ExecutionReport) error {
	return s.LogEvent(model.AuditEvent{
		EventType:  model.EventScriptExecuted,
		ArtifactID: artifactID,
		Severity:   "info",
		Message:    "Script executed: " + artifactID,
		Details: map[string]interface{}{
			"success":        report.Success,
			"exit_code":      report.ExitCode,
			"wall_ms":        report.WallMS,
			"memory_peak_mb": report.MemoryPeakMB,
		},
	})
}

// LogSecurityViolation records a security_violation event and mirrors each
// violation into the separate violations log.
func (s *Sink) LogSecurityViolation(artifactID string, violations []model.Violation) error {
	msg := "Security violation detected"
	if len(violations) > 0 {
		msg = "Security violation: " + violations[0].Message
	}
	return s.LogEvent(model.AuditEvent{
		EventType:  model.EventSecurityRejected,
		ArtifactID: artifactID,
		Severity:   "error",
		Message:    msg,
		Violations: violations,
	})
}

// LogError records an error event.
func (s *Sink) LogError(artifactID, errCode, message string) error {
	return s.LogEvent(model.AuditEvent{
		EventType:  "error",
		ArtifactID: artifactID,
		Severity:   "error",
		Message:    "Error: " + message,
		Details:    map[string]interface{}{"error_code": errCode},
	})
}

func (s *Sink) appendJSONLine(path string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

func (s *Sink) updateStats(event model.AuditEvent) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.stats.TotalEvents++
	switch event.EventType {
	case model.EventScriptGenerated:
		s.stats.ScriptGenerations++
	case model.EventScriptExecuted:
		s.stats.ScriptExecutions++
	case model.EventSecurityRejected:
		s.stats.SecurityViolations++
	case "error":
		s.stats.Errors++
	}
}

// Stats returns a snapshot of the running audit counters.
func (s *Sink) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// QueryEvents scans the audit log applying the given filter, returning
// matches newest-first, mirroring AuditLogger.query_events.
func (s *Sink) QueryEvents(filter QueryFilter) ([]model.AuditEvent, error) {
	f, err := os.Open(s.auditFile)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Warn("audit log file not found", "file", s.auditFile)
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, "open audit log", err)
	}
	defer f.Close()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var events []model.AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event model.AuditEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if !matchesFilter(event, filter) {
			continue
		}
		events = append(events, event)
		if len(events) >= limit {
			break
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	return events, nil
}

func matchesFilter(event model.AuditEvent, filter QueryFilter) bool {
	if len(filter.EventTypes) > 0 {
		found := false
		for _, t := range filter.EventTypes {
			if t == event.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.ArtifactID != "" && event.ArtifactID != filter.ArtifactID {
		return false
	}
	if !filter.StartTime.IsZero() && event.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && event.Timestamp.After(filter.EndTime) {
		return false
	}
	return true
}

func generateEventID() string {
	return "event_" + time.Now().UTC().Format("20060102_150405") + "_" + uuid.NewString()[:8]
}
