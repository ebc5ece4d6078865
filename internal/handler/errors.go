package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorHandler returns an Echo error handler that renders every error as a
// plain-text body instead of Echo's default JSON.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := http.StatusText(code)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = http.StatusText(code)
			if he.Message != nil {
				if s := fmt.Sprint(he.Message); s != "" {
					msg = s
				}
			}
			if he.Internal != nil {
				logger.Debug("http error", "code", code, "err", he.Internal)
			}
		} else {
			logger.Error("unhandled error",
				"err", err,
				"path", c.Request().URL.Path,
			)
		}

		if werr := c.Blob(code, echo.MIMETextPlain, []byte(msg+"\n")); werr != nil {
			logger.Debug("writing error response", "err", werr)
		}
	}
}
