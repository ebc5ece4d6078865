// Package client provides the outbound HTTP client for the backend origin.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"devproxy/internal/config"
	"devproxy/internal/metrics"
	"devproxy/internal/model"
)

const userAgent = "devproxy/1.0"

// maxRedirects bounds how many backend redirects are followed per request.
const maxRedirects = 10

// BackendClient sends GET requests to the backend origin.
type BackendClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBackendClient creates a BackendClient with connection pooling and a
// bounded request timeout. The metrics parameter is optional; pass nil to
// disable upstream metrics recording.
func NewBackendClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BackendClient {
	logger = logger.With("component", "backend_client")

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &BackendClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Upstream.Timeout(),
			// Backend redirects are resolved here, never relayed.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				logger.Debug("following backend redirect", "location", req.URL.String())
				return nil
			},
		},
		logger:  logger,
		metrics: m,
	}
}

// Get issues a GET for url with no body and reads the whole response.
// The context bounds the call together with the configured timeout: when
// the client disconnects the backend request is abandoned too.
func (c *BackendClient) Get(ctx context.Context, url string) (*model.BackendResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("backend request", "url", url)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(start, "error")
		return nil, fmt.Errorf("backend request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(start, "error")
		return nil, fmt.Errorf("read backend response: %w", err)
	}
	c.observe(start, strconv.Itoa(resp.StatusCode))

	return &model.BackendResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *BackendClient) observe(start time.Time, status string) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	c.metrics.UpstreamResponses.WithLabelValues(status).Inc()
}
