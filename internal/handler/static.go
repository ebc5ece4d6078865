package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"

	"devproxy/internal/config"
)

// StaticHandler serves files and directory listings from the static root.
// Lookups go through an os.Root, so neither ".." nor symlinks can reach
// outside the directory.
type StaticHandler struct {
	dir    string
	root   *os.Root
	files  http.Handler
	logger *slog.Logger
}

// NewStaticHandler opens the configured static root. A missing or unreadable
// root is a startup error.
func NewStaticHandler(cfg *config.Config, logger *slog.Logger) (*StaticHandler, error) {
	root, err := os.OpenRoot(cfg.Static.Root)
	if err != nil {
		return nil, fmt.Errorf("open static root %s: %w", cfg.Static.Root, err)
	}

	return &StaticHandler{
		dir:    cfg.Static.Root,
		root:   root,
		files:  http.FileServerFS(root.FS()),
		logger: logger.With("component", "static_handler"),
	}, nil
}

// Handle serves the request path relative to the static root.
func (h *StaticHandler) Handle(c echo.Context) error {
	req := c.Request()
	if hasDotDotSegment(req.URL.Path) {
		h.logger.Warn("rejected path traversal", "path", req.URL.Path, "remote_ip", c.RealIP())
		return echo.NewHTTPError(http.StatusForbidden, "path escapes static root")
	}

	h.files.ServeHTTP(c.Response(), req)
	return nil
}

// Dir returns the static root as configured.
func (h *StaticHandler) Dir() string {
	return h.dir
}

// Close releases the static root directory handle.
func (h *StaticHandler) Close() error {
	return h.root.Close()
}

func hasDotDotSegment(p string) bool {
	if !strings.Contains(p, "..") {
		return false
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}
