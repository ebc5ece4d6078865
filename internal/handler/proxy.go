// Package handler implements the HTTP handlers: request routing, the
// backend forwarder, the static file server and the admin endpoints.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"devproxy/internal/service"
)

// ProxyHandler relays /api/ requests to the backend.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle forwards the request target to the backend and writes back the
// buffered status, headers and body.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	resp, err := h.service.Forward(req.Context(), req.URL.RequestURI())
	if err != nil {
		return h.mapError(c, err)
	}

	res := c.Response()
	for key, vals := range resp.Header {
		for _, v := range vals {
			res.Header().Add(key, v)
		}
	}
	res.WriteHeader(resp.StatusCode)

	// Status and headers are already out; a failed write means the client
	// went away and there is nobody left to report to.
	if _, err := res.Write(resp.Body); err != nil {
		h.logger.Warn("writing response body",
			"err", err,
			"path", req.URL.Path,
		)
	}
	return nil
}

// mapError answers a request whose backend call produced no response.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	return c.Blob(http.StatusInternalServerError, echo.MIMETextPlain, []byte(describeError(err)))
}

// describeError renders a backend failure as a human-readable line.
func describeError(err error) string {
	summary := "backend request failed"

	var netErr net.Error
	var dnsErr *net.DNSError
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.Canceled):
		summary = "client disconnected"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		summary = "backend request timed out"
	case errors.As(err, &dnsErr):
		summary = "backend host unreachable"
	case errors.As(err, &urlErr):
		summary = "backend connection failed"
	}

	return summary + ": " + err.Error()
}
