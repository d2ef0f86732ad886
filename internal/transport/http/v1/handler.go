// Package v1 provides the public HTTP API for the arbitration engine.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/conclave/internal/engine"
)

// Handler handles HTTP requests.
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates a new handler.
func NewHandler(engine *engine.Engine) *Handler {
	return &Handler{
		engine: engine,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Decision API
	e.POST("/v1/decisions", h.CreateDecision)
	e.POST("/v1/decisions/evaluate", h.EvaluateOperation)

	// Session audit API
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.GET("/v1/sessions", h.ListSessions)
	e.GET("/v1/stats", h.GetStats)

	// Registry API
	e.POST("/v1/registry/reload", h.ReloadRegistry)

	// Bus API
	e.GET("/v1/bus/:channel", h.PollBus)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
