// Package server runs the Echo instance on a TCP listener with bounded
// inbound timeouts and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/labstack/echo/v4"
)

// Inbound timeouts. WriteTimeout stays 0: a slow backend is bounded by the
// upstream client timeout instead.
const (
	readTimeout       = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// Server owns the listener for an Echo instance.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
	ln     net.Listener
}

// New validates addr and prepares e's underlying http.Server.
func New(e *echo.Echo, addr string, logger *slog.Logger) (*Server, error) {
	if err := validateAddr(addr); err != nil {
		return nil, fmt.Errorf("listen address %q: %w", addr, err)
	}

	e.Server.ReadTimeout = readTimeout
	e.Server.ReadHeaderTimeout = readHeaderTimeout
	e.Server.IdleTimeout = idleTimeout
	e.Server.WriteTimeout = 0

	return &Server{
		echo:   e,
		addr:   addr,
		logger: logger.With("component", "server"),
	}, nil
}

// Start binds the listen address and serves in the background. It returns
// the bound address, which differs from the configured one for port 0.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", s.addr, err)
	}
	s.ln = ln

	s.logger.Info("starting server", "addr", ln.Addr().String())
	go func() {
		if err := s.echo.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "err", err)
		}
	}()
	return ln.Addr(), nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.echo.Shutdown(ctx)
}

func validateAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	// Port 0 asks the kernel for a free port.
	if err := validation.Validate(port, validation.Required, validation.When(port != "0", is.Port)); err != nil {
		return validation.NewError("validation_invalid_port", "invalid port")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}
	return nil
}
