package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"devproxy/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves the admin health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// statusResponse describes how requests are routed and relayed.
type statusResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	BackendURL     string `json:"backend_url"`
	BackendTimeout string `json:"backend_timeout"`
	APIPrefix      string `json:"api_prefix"`
	StaticRoot     string `json:"static_root"`
	AllowOrigin    string `json:"cors_allow_origin"`
	ErrorHeaders   string `json:"backend_error_headers"`
}

// Status reports where requests are being sent and which headers the
// relay applies.
func (h *HealthHandler) Status(c echo.Context) error {
	errorHeaders := "text/plain"
	if !h.cfg.Upstream.PlainTextErrors() {
		errorHeaders = "relayed"
	}

	return c.JSON(http.StatusOK, statusResponse{
		Status:         "ok",
		Version:        string(h.version),
		BackendURL:     h.cfg.Upstream.BaseURL,
		BackendTimeout: h.cfg.Upstream.Timeout().String(),
		APIPrefix:      config.APIPrefix,
		StaticRoot:     h.cfg.Static.Root,
		AllowOrigin:    h.cfg.CORS.AllowOrigin,
		ErrorHeaders:   errorHeaders,
	})
}
