package middleware

import (
	"github.com/labstack/echo/v4"
)

// Values stamped on every response so no browser or intermediary cache
// stores or reuses it.
const (
	cacheControlValue = "no-cache, no-store, must-revalidate"
	pragmaValue       = "no-cache"
	expiresValue      = "0"
)

// ResponseFinalizer returns an Echo middleware that sets the cache-disabling
// headers and Access-Control-Allow-Origin on every response. The headers are
// written from a Response.Before hook, which runs once, right before the
// status line goes out, whichever handler or error path produced it. Values
// are Set, so a relayed backend Cache-Control is replaced, not duplicated.
func ResponseFinalizer(allowOrigin string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response()
			res.Before(func() {
				h := res.Header()
				h.Set(echo.HeaderCacheControl, cacheControlValue)
				h.Set("Pragma", pragmaValue)
				h.Set("Expires", expiresValue)
				h.Set(echo.HeaderAccessControlAllowOrigin, allowOrigin)
			})
			return next(c)
		}
	}
}
