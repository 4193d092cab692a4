package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mmynk/ledgerbank/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// UsernameKey is the context key for storing the authenticated username.
	UsernameKey contextKey = "username"
	// RoleKey is the context key for storing the authenticated principal role.
	RoleKey contextKey = "role"
)

// GetUsername extracts the authenticated username from the context.
// Returns empty string if not found.
func GetUsername(ctx context.Context) string {
	username, _ := ctx.Value(UsernameKey).(string)
	return username
}

// GetRole extracts the authenticated principal role from the context.
// Returns empty string if not found.
func GetRole(ctx context.Context) string {
	role, _ := ctx.Value(RoleKey).(string)
	return role
}

// RequireAuth returns a middleware that validates JWT tokens and requires authentication.
// It extracts the token from the Authorization header, validates it, and adds
// the username and role to the request context.
func RequireAuth(jwtManager *auth.JWTManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrMissingToken.Error())
			}

			// Parse Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrInvalidToken.Error())
			}

			claims, err := jwtManager.Validate(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrInvalidToken.Error()).SetInternal(err)
			}

			ctx := context.WithValue(c.Request().Context(), UsernameKey, claims.Username)
			ctx = context.WithValue(ctx, RoleKey, claims.Role)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// RequireRole rejects authenticated requests whose principal role differs
// from role. It must run after RequireAuth.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := GetRole(c.Request().Context())
			if got == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrMissingToken.Error())
			}
			if got != role {
				return echo.NewHTTPError(http.StatusForbidden, "route requires role "+role)
			}
			return next(c)
		}
	}
}
