package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scriptsmith/scriptsmith/pkg/model"
)

// runResponse is the §6 RunResponse shape.
type runResponse struct {
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

// Run handles POST /api/run.
func (s *Server) Run(c *gin.Context) {
	var req model.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	resp, err := s.engine.Run(c.Request.Context(), req)
	if err != nil {
		status, code, violations := mapEngineError(err)
		jsonError(c, status, code, err.Error(), violations)
		return
	}

	c.JSON(http.StatusOK, runResponse{
		ScriptID:        resp.ScriptID,
		Code:            resp.Code,
		Language:        resp.Language,
		Cached:          resp.Cached,
		Provider:        resp.Provider,
		Fingerprint:     resp.Fingerprint,
		CreatedAt:       resp.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		ExecutionResult: resp.ExecutionResult,
		Metadata:        resp.Metadata,
	})
}
