package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-auth/internal/model"
	"github.com/iliyamo/campus-auth/internal/queue"
	"github.com/iliyamo/campus-auth/internal/utils"
)

const (
	loginFailureKey   = "login_failure_reason"
	maxLoginBodyBytes = 64 << 10
)

// SetLoginFailure lets a login handler name why the attempt failed.  The
// reason is recorded in the attempt history, never sent to the client.
func SetLoginFailure(c echo.Context, reason string) {
	c.Set(loginFailureKey, reason)
}

// LoginAttemptGuard wraps the login endpoint.  Before the handler runs it
// refuses (email, address) pairs over the failure threshold; afterwards it
// records the attempt.  A 2xx response is a success, a 4xx a failure, and a
// 5xx is not recorded since the credentials were never judged.
func (g *Gate) LoginAttemptGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			email, err := peekEmail(c)
			if err != nil || email == "" {
				// Malformed bodies are the handler's to reject.
				return next(c)
			}
			addr := g.ClientIP(c.Request())

			ctx, cancel := context.WithTimeout(c.Request().Context(), g.cfg.StoreTimeout)
			limited, retry, err := g.Logins.IsRateLimited(ctx, email, addr)
			cancel()
			if err != nil {
				return g.deny(c, err)
			}
			if limited {
				g.Metrics.LoginAttempt("throttled")
				g.Events.Publish(c.Request().Context(), queue.AuthEvent{
					Type:       queue.EventLoginThrottled,
					Email:      email,
					IPAddress:  addr,
					OccurredAt: time.Now().UTC(),
				})
				return g.deny(c, rateLimited(CodeLoginRateLimited, retry))
			}

			herr := next(c)

			status := c.Response().Status
			if herr != nil {
				status = http.StatusInternalServerError
				if he, ok := herr.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			if status >= 500 {
				return herr
			}
			attempt := model.LoginAttempt{
				Email:             email,
				IPAddress:         addr,
				Success:           status < 300 && herr == nil,
				DeviceFingerprint: utils.FingerprintFromRequest(c.Request(), addr),
			}
			if !attempt.Success {
				attempt.FailureReason, _ = c.Get(loginFailureKey).(string)
				if attempt.FailureReason == "" {
					attempt.FailureReason = "http_" + strconv.Itoa(status)
				}
				g.Metrics.LoginAttempt("failure")
			} else {
				g.Metrics.LoginAttempt("success")
			}

			// The response may already be on the wire; a lost record is
			// logged rather than turned into an error.
			rctx, rcancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), g.cfg.StoreTimeout)
			defer rcancel()
			if err := g.Logins.RecordLoginAttempt(rctx, attempt); err != nil {
				g.Log.Warn("record login attempt", "email", email, "err", err)
			}
			return herr
		}
	}
}

// peekEmail reads the JSON body's email field and restores the body for the
// handler.
func peekEmail(c echo.Context) (string, error) {
	r := c.Request()
	if r.Body == nil || !strings.HasPrefix(r.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return "", nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBodyBytes))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return "", err
	}
	email, ok := utils.NormalizeEmail(req.Email)
	if !ok {
		return "", nil
	}
	return email, nil
}
