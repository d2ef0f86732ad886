// Package http provides the HTTP server for the arbitration engine.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/conclave/internal/engine"
	v1 "github.com/xiaot623/conclave/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server.
func NewServer(eng *engine.Engine) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(eng)
	v1Handler.RegisterRoutes(e)

	return e
}
