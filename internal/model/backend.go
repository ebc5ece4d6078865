// Package model defines shared types for the proxy.
package model

import "net/http"

// BackendResponse is a backend reply read to completion. The body is held
// in memory so the relay can write status, headers and body in one pass.
type BackendResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
