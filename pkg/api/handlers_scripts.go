package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scriptsmith/scriptsmith/pkg/cache"
	"github.com/scriptsmith/scriptsmith/pkg/model"
)

// listResponse is the §6 ListResponse shape.
type listResponse struct {
	Scripts []model.Artifact `json:"scripts"`
	Total   int              `json:"total"`
}

// List handles GET /api/scripts.
func (s *Server) List(c *gin.Context) {
	filter := cache.ListFilter{
		Limit:     atoiOr(c.Query("limit"), 50),
		Offset:    atoiOr(c.Query("offset"), 0),
		Language:  model.NormalizeLanguage(c.Query("language")),
		Search:    c.Query("search"),
		SortBy:    queryOr(c.Query("sort_by"), "cached_at"),
		SortOrder: queryOr(c.Query("order"), "desc"),
	}

	artifacts, err := s.engine.Cache.List(filter)
	if err != nil {
		status, code, violations := mapEngineError(err)
		jsonError(c, status, code, err.Error(), violations)
		return
	}

	c.JSON(http.StatusOK, listResponse{Scripts: artifacts, Total: len(artifacts)})
}

// showResponse is the §6 ShowResponse shape; Code is included unless the
// request sets include_code=false, matching the programmatic surface's
// include_code flag.
type showResponse struct {
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

// Show handles GET /api/scripts/:id.
func (s *Server) Show(c *gin.Context) {
	scriptID := c.Param("id")
	includeCode := c.Query("include_code") != "false"

	art, err := s.engine.Cache.GetByScriptID(scriptID)
	if err != nil {
		status, code, violations := mapEngineError(err)
		jsonError(c, status, code, err.Error(), violations)
		return
	}
	if art == nil {
		jsonError(c, http.StatusNotFound, "not_found", "script not found: "+scriptID, nil)
		return
	}

	resp := showResponse{
		ScriptID:       art.ScriptID,
		Fingerprint:    art.Fingerprint,
		Prompt:         art.Prompt,
		Language:       art.Language,
		Provider:       art.Provider,
		PolicyName:     art.PolicyName,
		CreatedAt:      art.CreatedAt,
		AccessCount:    art.AccessCount,
		CacheHitCount:  art.CacheHitCount,
		LastAccessedAt: art.LastAccessedAt,
		Metadata:       art.Metadata,
	}
	if includeCode {
		resp.Code = art.Code
	}
	c.JSON(http.StatusOK, resp)
}

// clearRequest is the §6 ClearResponse request shape.
type clearRequest struct {
	ScriptIDs       []string       `json:"script_ids,omitempty"`
	Language        model.Language `json:"language,omitempty"`
	OlderThanSeconds int64         `json:"older_than_seconds,omitempty"`
	All             bool           `json:"all,omitempty"`
}

type clearResponse struct {
	Removed int `json:"removed"`
}

// Clear handles POST /api/scripts/clear.
func (s *Server) Clear(c *gin.Context) {
	var req clearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	filter := cache.ClearFilter{
		ScriptIDs: req.ScriptIDs,
		Language:  req.Language,
		All:       req.All,
	}
	if req.OlderThanSeconds > 0 {
		filter.OlderThan = time.Duration(req.OlderThanSeconds) * time.Second
	}

	removed, err := s.engine.Cache.Clear(filter)
	if err != nil {
		status, code, violations := mapEngineError(err)
		jsonError(c, status, code, err.Error(), violations)
		return
	}

	c.JSON(http.StatusOK, clearResponse{Removed: removed})
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func queryOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
