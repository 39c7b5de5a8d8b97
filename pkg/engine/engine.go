// Package engine orchestrates one end-to-end script run: fingerprint,
// cache lookup, prompt processing, generation, security scanning, cache
// storage, optional sandboxed execution, and audit logging of each
// generation, cache hit, execution, security rejection and error. Grounded on capibara's core/engine.py (_examples/original_source)
// for the operation order and the cache/generate/scan/store/execute
// sequencing; every step it performs inline here is a package of its own.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scriptsmith/scriptsmith/pkg/apperr"
	"github.com/scriptsmith/scriptsmith/pkg/audit"
	"github.com/scriptsmith/scriptsmith/pkg/cache"
	"github.com/scriptsmith/scriptsmith/pkg/fingerprint"
	"github.com/scriptsmith/scriptsmith/pkg/generator"
	"github.com/scriptsmith/scriptsmith/pkg/model"
	"github.com/scriptsmith/scriptsmith/pkg/policy"
	"github.com/scriptsmith/scriptsmith/pkg/promptproc"
	"github.com/scriptsmith/scriptsmith/pkg/provider"
	"github.com/scriptsmith/scriptsmith/pkg/sandbox"
	"github.com/scriptsmith/scriptsmith/pkg/scanner"
)

// SecurityError is raised when generated code fails the static scan. It
// carries the violations that caused the rejection, mirroring engine.py's
// SecurityError exception.
type SecurityError struct {
	cause      *apperr.Error
	Violations []model.Violation
}

func newSecurityError(violations []model.Violation) *SecurityError {
	return &SecurityError{
		cause:      apperr.New(apperr.KindSecurityViolation, fmt.Sprintf("script failed security scan: %d violation(s)", len(violations))),
		Violations: violations,
	}
}

// Error implements the error interface.
func (se *SecurityError) Error() string {
	return se.cause.Error()
}

// Unwrap exposes the underlying *apperr.Error so apperr.KindOf/IsRetryable
// see through SecurityError the same way they see through any other
// wrapped error.
func (se *SecurityError) Unwrap() error {
	return se.cause
}

// Response is what Engine.Run returns: a generated or cached script, plus
// its execution result if the request asked to run it.
type Response struct {
	ScriptID        string
	Prompt          string
	Language        model.Language
	Code            string
	ExecutionResult *model.ExecutionReport
	Cached          bool
	CacheHitCount   int64
	PolicyName      string
	Provider        string
	Fingerprint     string
	CreatedAt       time.Time
	Metadata        map[string]interface{}
}

// Engine wires together the cache, policy store, provider pool, sandbox
// runner, and audit sink into the single Run operation.
type Engine struct {
	Cache     *cache.Cache
	Policies  *policy.Store
	Providers *provider.Pool
	Sandbox   *sandbox.Runner
	Audit     *audit.Sink
	log       *slog.Logger
}

// New builds an Engine from its constituent subsystems. Sandbox may be nil
// when execution is not offered in this deployment; Run then rejects any
// request with Execute set.
func New(c *cache.Cache, policies *policy.Store, providers *provider.Pool, runner *sandbox.Runner, auditSink *audit.Sink) *Engine {
	return &Engine{
		Cache:     c,
		Policies:  policies,
		Providers: providers,
		Sandbox:   runner,
		Audit:     auditSink,
		log:       slog.With("component", "engine"),
	}
}

// Run generates (or serves from cache) a script for req, scans it for
// security violations, caches it, and optionally executes it in the
// sandbox.
func (e *Engine) Run(ctx context.Context, req model.Request) (*Response, error) {
	if req.Prompt == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "prompt is required")
	}
	if !req.Language.Valid() {
		return nil, apperr.New(apperr.KindInvalidRequest, "unsupported language: "+string(req.Language))
	}
	if req.Execute && e.Sandbox == nil {
		return nil, apperr.New(apperr.KindInvalidRequest, "execution was requested but no sandbox is configured")
	}

	e.log.Info("starting script generation", "prompt_length", len(req.Prompt), "language", req.Language)

	policyName := req.EffectivePolicyName()
	pol := e.Policies.Get(policyName)

	fp := fingerprint.Compute(req.Prompt, req.Language, req.Context, policyName)

	art, fromCache, err := e.Cache.GetOrPopulate(fp, func() (*model.Artifact, error) {
		return e.populate(ctx, req, pol, policyName)
	})
	if err != nil {
		return nil, err
	}

	if fromCache {
		return e.buildCachedResponse(art)
	}

	if err := e.Audit.LogScriptGeneration(art.ScriptID, req.Prompt, req.Language, art.Provider); err != nil {
		e.log.Warn("failed to log script generation", "error", err)
	}

	resp := &Response{
		ScriptID:    art.ScriptID,
		Prompt:      req.Prompt,
		Language:    req.Language,
		Code:        art.Code,
		Cached:      false,
		PolicyName:  policyName,
		Provider:    art.Provider,
		Fingerprint: fp,
		CreatedAt:   art.CreatedAt,
		Metadata:    art.Metadata,
	}

	if req.Execute {
		report, err := e.execute(ctx, art.ScriptID, art.Code, req.Language, pol)
		if err != nil {
			return nil, err
		}
		resp.ExecutionResult = report
	}

	e.log.Info("script generated successfully", "script_id", art.ScriptID)
	return resp, nil
}

// populate runs the process->generate->scan pipeline for a cache miss and
// builds the artifact to be stored. It does not execute the script — that
// only happens once per request, not once per fingerprint, since two
// callers sharing a fingerprint should not each pay for a sandbox run.
func (e *Engine) populate(ctx context.Context, req model.Request, pol *model.Policy, policyName string) (*model.Artifact, error) {
	processed := promptproc.Process(req.Prompt, req.Context)

	genResult, err := generator.Generate(ctx, e.Providers, processed.Text, req.Language, req.ProviderName)
	if err != nil {
		if logErr := e.Audit.LogError("", "generation_failed", err.Error()); logErr != nil {
			e.log.Warn("failed to log generation error", "error", logErr)
		}
		return nil, err
	}

	scanResult := scanner.Scan(genResult.Code, req.Language, pol)
	if !scanResult.Passed {
		e.log.Warn("security scan failed", "violations", len(scanResult.Violations))
		if logErr := e.Audit.LogSecurityViolation("", scanResult.Violations); logErr != nil {
			e.log.Warn("failed to log security violations", "error", logErr)
		}
		return nil, newSecurityError(scanResult.Violations)
	}

	return &model.Artifact{
		ScriptID:   generateScriptID(),
		Prompt:     req.Prompt,
		Language:   req.Language,
		Code:       genResult.Code,
		Provider:   genResult.Provider,
		PolicyName: policyName,
		CacheTTL:   req.EffectiveTTL(),
		Metadata: map[string]interface{}{
			"category":         string(processed.Category),
			"processed_prompt": processed.Text,
			"rules_applied":    scanResult.RulesApplied,
		},
	}, nil
}

func (e *Engine) buildCachedResponse(art *model.Artifact) (*Response, error) {
	if err := e.Cache.IncrementCacheHitCount(art.ScriptID); err != nil {
		e.log.Warn("failed to increment cache hit count", "script_id", art.ScriptID, "error", err)
	}
	if err := e.Audit.LogEvent(model.AuditEvent{
		EventType:  model.EventCacheHit,
		ArtifactID: art.ScriptID,
		Severity:   "info",
		Message:    "Script served from cache: " + art.ScriptID,
	}); err != nil {
		e.log.Warn("failed to log cache hit", "error", err)
	}
	e.log.Info("script served from cache", "script_id", art.ScriptID)

	return &Response{
		ScriptID:      art.ScriptID,
		Prompt:        art.Prompt,
		Language:      art.Language,
		Code:          art.Code,
		Cached:        true,
		CacheHitCount: art.CacheHitCount + 1,
		PolicyName:    art.PolicyName,
		Provider:      art.Provider,
		Fingerprint:   art.Fingerprint,
		CreatedAt:     art.CreatedAt,
		Metadata:      art.Metadata,
	}, nil
}

func (e *Engine) execute(ctx context.Context, scriptID, code string, language model.Language, pol *model.Policy) (*model.ExecutionReport, error) {
	e.log.Info("executing script in sandbox", "script_id", scriptID)

	report, err := e.Sandbox.Execute(ctx, code, language, pol.ResourceLimits)
	if err != nil {
		if logErr := e.Audit.LogError(scriptID, "execution_failed", err.Error()); logErr != nil {
			e.log.Warn("failed to log execution error", "error", logErr)
		}
		return nil, err
	}

	if logErr := e.Audit.LogScriptExecution(scriptID, *report); logErr != nil {
		e.log.Warn("failed to log script execution", "error", logErr)
	}
	return report, nil
}

func generateScriptID() string {
	return "script_" + time.Now().UTC().Format("20060102_150405") + "_" + uuid.NewString()[:8]
}
