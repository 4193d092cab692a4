package middleware

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestLogger returns an echo middleware that tags every request with an id
// and logs the method, path, status, username and duration once it completes.
// Errors are rendered here through the echo error handler so the logged status
// is the one the client sees.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			attrs := []any{
				"request_id", requestID,
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"username", GetUsername(req.Context()), // empty if pre-auth
				"duration_ms", time.Since(start).Milliseconds(),
			}
			switch {
			case status >= 500:
				slog.Error("Request failed", append(attrs, "error", err)...)
			case status >= 400:
				slog.Warn("Request rejected", append(attrs, "error", err)...)
			default:
				slog.Info("Request ok", attrs...)
			}
			return nil
		}
	}
}
