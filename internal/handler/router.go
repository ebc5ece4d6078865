package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"devproxy/internal/config"
)

// IsAPIPath reports whether a request path is forwarded to the backend.
func IsAPIPath(path string) bool {
	return strings.HasPrefix(path, config.APIPrefix)
}

// Router dispatches every non-admin request to the proxy or the static
// file server. Only GET is served.
type Router struct {
	proxy  *ProxyHandler
	static *StaticHandler
}

// NewRouter creates a Router.
func NewRouter(proxy *ProxyHandler, static *StaticHandler) *Router {
	return &Router{proxy: proxy, static: static}
}

// Handle classifies the request and delegates. Errors from the delegate are
// returned unchanged.
func (r *Router) Handle(c echo.Context) error {
	req := c.Request()
	if req.Method != http.MethodGet {
		c.Response().Header().Set(echo.HeaderAllow, http.MethodGet)
		return echo.NewHTTPError(http.StatusMethodNotAllowed, "method not supported: "+req.Method)
	}

	// The raw path decides, the same string the forwarder appends to the
	// backend URL; an encoded "/api%2F" stays static.
	if IsAPIPath(req.URL.EscapedPath()) {
		return r.proxy.Handle(c)
	}
	return r.static.Handle(c)
}
