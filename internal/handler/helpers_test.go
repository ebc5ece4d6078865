package handler

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"

	"devproxy/internal/client"
	"devproxy/internal/config"
	"devproxy/internal/metrics"
	"devproxy/internal/middleware"
	"devproxy/internal/service"
)

const indexHTML = "<!doctype html><title>Pokedex</title>"

// newStaticRoot creates a static root holding index.html, app.js and an
// images/ directory, plus a secret file next to (outside) the root.
func newStaticRoot(t *testing.T) string {
	t.Helper()
	parent := t.TempDir()
	root := filepath.Join(parent, "frontend")

	files := map[string]string{
		"index.html":       indexHTML,
		"app.js":           "console.log('pokedex');",
		"images/ball.svg":  "<svg/>",
		"images/notes.txt": "shiny",
	}
	for name, body := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("top secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func newTestConfig(staticRoot, backendURL string) *config.Config {
	return &config.Config{
		Static: config.StaticConfig{Root: staticRoot},
		Upstream: config.UpstreamConfig{
			BaseURL:         backendURL,
			TimeoutSeconds:  2,
			IdleConnections: 4,
		},
		CORS:  config.CORSConfig{AllowOrigin: "*"},
		Admin: config.AdminConfig{Prefix: "/_devproxy"},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEcho wires the same handler and middleware stack the binary uses.
func newTestEcho(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	logger := discardLogger()
	m := metrics.New()

	svc, err := service.NewProxyService(client.NewBackendClient(cfg, logger, m), cfg, logger)
	if err != nil {
		t.Fatalf("NewProxyService: %v", err)
	}
	static, err := NewStaticHandler(cfg, logger)
	if err != nil {
		t.Fatalf("NewStaticHandler: %v", err)
	}
	t.Cleanup(func() { _ = static.Close() })

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger)
	e.Use(middleware.ResponseFinalizer(cfg.CORS.AllowOrigin))
	e.Use(middleware.SecurityHeaders())

	RegisterRoutes(e, cfg,
		NewRouter(NewProxyHandler(svc, logger), static),
		NewHealthHandler(cfg, "test"),
		m,
	)
	return e
}

var finalizerHeaders = map[string]string{
	"Cache-Control":               "no-cache, no-store, must-revalidate",
	"Pragma":                      "no-cache",
	"Expires":                     "0",
	"Access-Control-Allow-Origin": "*",
}

func assertFinalized(t *testing.T, h http.Header) {
	t.Helper()
	for k, v := range finalizerHeaders {
		if got := h.Values(k); len(got) != 1 || got[0] != v {
			t.Errorf("%s = %q, want exactly [%q]", k, got, v)
		}
	}
}
