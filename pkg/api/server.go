// Package api provides the HTTP surface over the Engine: a thin
// github.com/gin-gonic/gin layer exposing run/list/show/clear/health/stats,
// grounded on the teacher's gin-based cmd/tarsy/main.go router setup and
// pkg/api/handlers.go handler shape (the Server struct wrapping service
// dependencies, ShouldBindJSON/c.JSON(status, gin.H{...})). The teacher's
// echo-based pkg/api/server.go is not used as a model: it imports
// github.com/labstack/echo/v5, which is not declared in the teacher's own
// go.mod, so it is not a buildable reference.
package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scriptsmith/scriptsmith/pkg/engine"
	"github.com/scriptsmith/scriptsmith/pkg/health"
)

// Server wires the Engine and the health Checker into a gin router.
type Server struct {
	engine  *engine.Engine
	checker *health.Checker
	log     *slog.Logger
}

// NewServer builds a Server from its dependencies.
func NewServer(eng *engine.Engine, checker *health.Checker) *Server {
	return &Server{
		engine:  eng,
		checker: checker,
		log:     slog.With("component", "api"),
	}
}

// Router builds the gin engine with every route registered, ready to Run.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.POST("/api/run", s.Run)
	router.GET("/api/scripts", s.List)
	router.GET("/api/scripts/:id", s.Show)
	router.POST("/api/scripts/clear", s.Clear)
	router.GET("/health", s.Health)
	router.GET("/health/quick", s.HealthQuick)
	router.GET("/stats", s.Stats)
	router.GET("/metrics", s.Metrics)

	return router
}

// requestLogger replaces gin's default text logger with structured slog
// output, the way pkg/queue/*.go threads its logger through every operation
// instead of writing to a package-level global.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// errorResponse is the §6 error-code envelope: a string code plus a human
// message, with an optional violations vector for security_violation.
type errorResponse struct {
	Error      string      `json:"error"`
	Message    string      `json:"message"`
	Violations interface{} `json:"violations,omitempty"`
}

func jsonError(c *gin.Context, status int, code, message string, violations interface{}) {
	c.JSON(status, errorResponse{Error: code, Message: message, Violations: violations})
}
