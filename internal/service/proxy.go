// Package service implements the backend forwarding logic.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"devproxy/internal/client"
	"devproxy/internal/config"
	"devproxy/internal/model"
)

// droppedResponseHeaders are never relayed: the body is re-framed as one
// complete write, so the backend's framing headers no longer apply.
var droppedResponseHeaders = []string{
	"Transfer-Encoding",
	"Connection",
}

// ProxyService forwards /api/ requests to the backend origin.
type ProxyService struct {
	client          *client.BackendClient
	logger          *slog.Logger
	baseURL         string
	plainTextErrors bool
}

// NewProxyService creates a ProxyService for the configured backend.
func NewProxyService(c *client.BackendClient, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	if _, err := url.Parse(cfg.Upstream.BaseURL); err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}

	return &ProxyService{
		client:          c,
		logger:          logger.With("component", "proxy_service"),
		baseURL:         cfg.Upstream.BaseURL,
		plainTextErrors: cfg.Upstream.PlainTextErrors(),
	}, nil
}

// BackendURL returns the outbound URL for a request target. The target is
// appended as received, /api/ prefix and query string included.
func (s *ProxyService) BackendURL(requestURI string) string {
	return s.baseURL + requestURI
}

// Forward performs the backend GET for requestURI and returns the buffered
// response with its headers filtered for relay. Any status the backend
// answers with is a response, not an error; errors mean no response arrived.
func (s *ProxyService) Forward(ctx context.Context, requestURI string) (*model.BackendResponse, error) {
	target := s.BackendURL(requestURI)

	s.logger.Debug("forwarding request", "target", target)

	resp, err := s.client.Get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("forward to backend: %w", err)
	}

	resp.Header = s.relayHeaders(resp.StatusCode, resp.Header)
	return resp, nil
}

// relayHeaders returns the headers to send to the client for a backend
// response with the given status.
func (s *ProxyService) relayHeaders(status int, src http.Header) http.Header {
	if s.plainTextErrors && status >= http.StatusBadRequest {
		return http.Header{"Content-Type": {"text/plain"}}
	}

	dst := make(http.Header, len(src))
	for key, vals := range src {
		if isDropped(key) {
			continue
		}
		dst[key] = append([]string(nil), vals...)
	}
	return dst
}

func isDropped(key string) bool {
	for _, h := range droppedResponseHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}
