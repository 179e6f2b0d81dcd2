package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// Rejection codes returned in the "error" field of every gate response.
const (
	CodeMissingToken            = "MISSING_TOKEN"
	CodeInvalidToken            = "INVALID_TOKEN"
	CodeInvalidSession          = "INVALID_SESSION"
	CodeTenantRequired          = "TENANT_REQUIRED"
	CodeVerificationRequired    = "VERIFICATION_REQUIRED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	CodeLoginRateLimited        = "LOGIN_RATE_LIMITED"
	CodeServiceUnavailable      = "SERVICE_UNAVAILABLE"
)

// Rejection is an expected, client-facing denial.  Each code maps to exactly
// one status so responses are reproducible.
type Rejection struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration // only for 429s
}

func (r *Rejection) Error() string { return fmt.Sprintf("%d %s", r.Status, r.Code) }

func reject(code string) *Rejection {
	switch code {
	case CodeMissingToken:
		return &Rejection{Status: http.StatusUnauthorized, Code: code, Message: "authentication required"}
	case CodeInvalidToken:
		return &Rejection{Status: http.StatusUnauthorized, Code: code, Message: "invalid or expired token"}
	case CodeInvalidSession:
		return &Rejection{Status: http.StatusUnauthorized, Code: code, Message: "session expired or revoked"}
	case CodeTenantRequired:
		return &Rejection{Status: http.StatusForbidden, Code: code, Message: "university affiliation required"}
	case CodeVerificationRequired:
		return &Rejection{Status: http.StatusForbidden, Code: code, Message: "verified account required"}
	case CodeInsufficientPermissions:
		return &Rejection{Status: http.StatusForbidden, Code: code, Message: "insufficient permissions"}
	case CodeServiceUnavailable:
		return &Rejection{Status: http.StatusServiceUnavailable, Code: code, Message: "service temporarily unavailable"}
	}
	return &Rejection{Status: http.StatusForbidden, Code: code, Message: "forbidden"}
}

func rateLimited(code string, retryAfter time.Duration) *Rejection {
	msg := "rate limit exceeded"
	if code == CodeLoginRateLimited {
		msg = "too many failed login attempts"
	}
	return &Rejection{Status: http.StatusTooManyRequests, Code: code, Message: msg, RetryAfter: retryAfter}
}

// retrySeconds rounds up so clients never retry a moment too early.
func retrySeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// writeRejection renders r as JSON and sets Retry-After on 429s.
func writeRejection(c echo.Context, r *Rejection) error {
	body := echo.Map{"error": r.Code, "message": r.Message}
	if r.Status == http.StatusTooManyRequests {
		secs := retrySeconds(r.RetryAfter)
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		body["retry_after"] = secs
	}
	return c.JSON(r.Status, body)
}
