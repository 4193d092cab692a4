package service

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mmynk/ledgerbank/internal/auth"
	"github.com/mmynk/ledgerbank/internal/models"
)

// statusOf maps core error kinds to HTTP statuses.
var statusOf = map[models.ErrorKind]int{
	models.KindNotAuthorized:            http.StatusForbidden,
	models.KindNotFound:                 http.StatusNotFound,
	models.KindDuplicateUsername:        http.StatusConflict,
	models.KindDuplicateAccess:          http.StatusConflict,
	models.KindInsufficientFunds:        http.StatusUnprocessableEntity,
	models.KindInvalidAmountFormat:      http.StatusBadRequest,
	models.KindInvalidBirthDate:         http.StatusBadRequest,
	models.KindDomainInvariantViolation: http.StatusBadRequest,
}

// HTTPErrorHandler renders errors as ErrorResponse JSON.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Unhandled error", "path", c.Request().URL.Path, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		slog.Error("Failed to write error response", "error", err)
	}
}

func errorResponse(err error) (int, ErrorResponse) {
	var coreErr *models.Error
	if errors.As(err, &coreErr) {
		if status, ok := statusOf[coreErr.Kind]; ok {
			return status, ErrorResponse{Kind: string(coreErr.Kind), Message: coreErr.Message}
		}
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{Kind: "Unauthenticated", Message: err.Error()}
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrUnknownRole):
		return http.StatusBadRequest, ErrorResponse{Kind: "BadRequest", Message: err.Error()}
	case errors.Is(err, auth.ErrUsernameRegistered):
		return http.StatusConflict, ErrorResponse{Kind: string(models.KindDuplicateUsername), Message: err.Error()}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg := http.StatusText(httpErr.Code)
		if s, ok := httpErr.Message.(string); ok {
			msg = s
		}
		return httpErr.Code, ErrorResponse{Kind: kindOfStatus(httpErr.Code), Message: msg}
	}

	return http.StatusInternalServerError, ErrorResponse{Kind: "Internal", Message: "internal server error"}
}

func kindOfStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "Unauthenticated"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return string(models.KindNotFound)
	case http.StatusMethodNotAllowed:
		return "MethodNotAllowed"
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return "BadRequest"
	default:
		return "Internal"
	}
}
