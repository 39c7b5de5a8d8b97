// Package scriptsmith is the thin SDK client for talking to a running
// ScriptSmith server over HTTP: run/list/show/clear/health/stats, one
// method per pkg/api endpoint. Grounded on capibara's sdk/client.py
// (_examples/original_source) for the method surface — the original
// wires its own in-process engine, but spec.md's Non-goals don't exclude
// a client SDK, only multi-tenant/cross-request workflow features, so
// this client talks to the HTTP surface a deployed server already
// exposes rather than re-assembling the engine in the caller's process.
package scriptsmith

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/scriptsmith/scriptsmith/pkg/apperr"
	"github.com/scriptsmith/scriptsmith/pkg/health"
	"github.com/scriptsmith/scriptsmith/pkg/model"
	"github.com/scriptsmith/scriptsmith/pkg/version"
)

// DefaultTimeout is used when no *http.Client is supplied to NewClient.
const DefaultTimeout = 60 * time.Second

// Client is a ScriptSmith HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client targeting baseURL (e.g. "http://localhost:8080").
// A nil httpClient gets one with DefaultTimeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// RunResult mirrors pkg/api's runResponse.
type RunResult struct {
	ScriptID        string                  `json:"script_id"`
	Code            string                  `json:"code"`
	Language        model.Language          `json:"language"`
	Cached          bool                    `json:"cached"`
	Provider        string                  `json:"provider"`
	Fingerprint     string                  `json:"fingerprint"`
	CreatedAt       string                  `json:"created_at"`
	ExecutionResult *model.ExecutionReport  `json:"execution_result,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Run generates (or fetches from cache) a script for prompt/language,
// mirroring CapibaraClient.run.
func (c *Client) Run(ctx context.Context, req model.Request) (*RunResult, error) {
	var out RunResult
	if err := c.post(ctx, "/api/run", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListParams narrows a List call, mirroring CapibaraClient.list_scripts's
// keyword arguments.
type ListParams struct {
	Limit     int
	Offset    int
	Language  model.Language
	Search    string
	SortBy    string
	SortOrder string
}

// ListResult mirrors pkg/api's listResponse.
type ListResult struct {
	Scripts []model.Artifact `json:"scripts"`
	Total   int              `json:"total"`
}

// List returns the cached scripts matching params.
func (c *Client) List(ctx context.Context, params ListParams) (*ListResult, error) {
	q := url.Values{}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	if params.Language != "" {
		q.Set("language", string(params.Language))
	}
	if params.Search != "" {
		q.Set("search", params.Search)
	}
	if params.SortBy != "" {
		q.Set("sort_by", params.SortBy)
	}
	if params.SortOrder != "" {
		q.Set("order", params.SortOrder)
	}

	var out ListResult
	if err := c.get(ctx, "/api/scripts?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ShowResult mirrors pkg/api's showResponse.
type ShowResult struct {
	ScriptID       string                 `json:"script_id"`
	Fingerprint    string                 `json:"fingerprint"`
	Prompt         string                 `json:"prompt"`
	Language       model.Language         `json:"language"`
	Code           string                 `json:"code,omitempty"`
	Provider       string                 `json:"provider"`
	PolicyName     string                 `json:"policy_name"`
	CreatedAt      time.Time              `json:"created_at"`
	AccessCount    int64                  `json:"access_count"`
	CacheHitCount  int64                  `json:"cache_hit_count"`
	LastAccessedAt time.Time              `json:"last_accessed_at"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Show fetches one cached script by its script_id, mirroring
// CapibaraClient.show_script.
func (c *Client) Show(ctx context.Context, scriptID string, includeCode bool) (*ShowResult, error) {
	path := fmt.Sprintf("/api/scripts/%s?include_code=%t", url.PathEscape(scriptID), includeCode)
	var out ShowResult
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearParams mirrors CapibaraClient.clear_cache's keyword arguments.
type ClearParams struct {
	ScriptIDs        []string       `json:"script_ids,omitempty"`
	Language         model.Language `json:"language,omitempty"`
	OlderThanSeconds int64          `json:"older_than_seconds,omitempty"`
	All              bool           `json:"all,omitempty"`
}

// ClearResult mirrors pkg/api's clearResponse.
type ClearResult struct {
	Removed int `json:"removed"`
}

// Clear removes scripts matching params from the server's cache.
func (c *Client) Clear(ctx context.Context, params ClearParams) (*ClearResult, error) {
	var out ClearResult
	if err := c.post(ctx, "/api/scripts/clear", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health runs the server's full health check.
func (c *Client) Health(ctx context.Context) (*health.Report, error) {
	var out health.Report
	if err := c.get(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StatsResult mirrors pkg/api's statsResponse loosely — kept as a raw map
// since the client has no reason to depend on pkg/api's unexported types.
type StatsResult map[string]interface{}

// Stats fetches aggregate cache/provider/generator counters.
func (c *Client) Stats(ctx context.Context) (StatsResult, error) {
	var out StatsResult
	if err := c.get(ctx, "/stats", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "build request", err)
	}
	req.Header.Set("User-Agent", version.Full())
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidRequest, "marshal request body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.WrapRetryable(apperr.KindProviderFailure, "request to scriptsmith server failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.KindInternal, "decode response body", err)
	}
	return nil
}
