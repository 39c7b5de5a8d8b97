package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scriptsmith/scriptsmith/pkg/health"
)

// Health handles GET /health, running every registered check.
func (s *Server) Health(c *gin.Context) {
	report := s.checker.CheckAll(c.Request.Context())
	c.JSON(statusCodeFor(report.OverallStatus), report)
}

// HealthQuick handles GET /health/quick, running only critical checks — the
// fast liveness probe an orchestrator polls frequently.
func (s *Server) HealthQuick(c *gin.Context) {
	report := s.checker.CheckQuick(c.Request.Context())
	c.JSON(statusCodeFor(report.OverallStatus), report)
}

func statusCodeFor(status health.Status) int {
	switch status {
	case health.StatusHealthy:
		return http.StatusOK
	case health.StatusDegraded:
		return http.StatusOK
	default:
		return http.StatusServiceUnavailable
	}
}
