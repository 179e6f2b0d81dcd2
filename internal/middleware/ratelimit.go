package middleware

import (
	"context"
	"strconv"

	"github.com/labstack/echo/v4"
)

// RateLimit applies rl to routes that sit outside the gate (register,
// refresh, logout), keyed by client address.
func (g *Gate) RateLimit(rl RateLimitPolicy) echo.MiddlewareFunc {
	p := Policy{RateLimit: &rl}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), g.cfg.StoreTimeout)
			defer cancel()
			if err := g.limit(ctx, c, p, IdentityFrom(c)); err != nil {
				return g.deny(c, err)
			}
			return next(c)
		}
	}
}

// limit counts the request against the per-(caller, route) window.
func (g *Gate) limit(ctx context.Context, c echo.Context, p Policy, id *Identity) error {
	rl := p.RateLimit
	if rl == nil {
		rl = g.cfg.DefaultRateLimit
	}
	if rl == nil || g.Counter == nil {
		return nil
	}
	subject := "ip:" + g.ClientIP(c.Request())
	if id != nil {
		subject = "user:" + id.UserID()
	}
	route := c.Request().Method + " " + c.Path()

	n, ttl, err := g.Counter.Incr(ctx, subject, route, rl.Window)
	if err != nil {
		return err
	}
	remaining := int64(rl.Max) - n
	if remaining < 0 {
		remaining = 0
	}
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(rl.Max))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	if n > int64(rl.Max) {
		return rateLimited(CodeRateLimitExceeded, ttl)
	}
	return nil
}
