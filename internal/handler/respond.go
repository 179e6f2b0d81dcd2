package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-auth/internal/repository"
)

// Error codes returned by handlers.  Gate codes live in the middleware
// package.
const (
	CodeInvalidBody        = "INVALID_BODY"
	CodeInvalidEmail       = "INVALID_EMAIL"
	CodeWeakPassword       = "WEAK_PASSWORD"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeInvalidSession     = "INVALID_SESSION"
	CodeMissingToken       = "MISSING_TOKEN"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeUnavailable        = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

func fail(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"error": code, "message": msg})
}

// storeFailure answers an unexpected error: 503 for an unreachable store,
// 500 otherwise.  The cause is logged, never returned.
func storeFailure(c echo.Context, log *slog.Logger, op string, err error) error {
	log.Error(op, "path", c.Path(), "err", err)
	if errors.Is(err, repository.ErrUnavailable) {
		return fail(c, http.StatusServiceUnavailable, CodeUnavailable, "service temporarily unavailable")
	}
	return fail(c, http.StatusInternalServerError, CodeInternal, "internal error")
}
