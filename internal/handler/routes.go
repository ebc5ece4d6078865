package handler

import (
	"github.com/labstack/echo/v4"

	"devproxy/internal/config"
	"devproxy/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Admin
// routes are exact matches and take precedence over the catch-all.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, router *Router, health *HealthHandler, m *metrics.Metrics) {
	if cfg.Admin.Enabled {
		admin := e.Group(cfg.Admin.Prefix)
		admin.GET("/healthz", health.Healthz)
		admin.GET("/status", health.Status)
		admin.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	e.Any("/*", router.Handle)
}
