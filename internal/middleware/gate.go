package middleware // middleware provides the access gate and related request processing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-auth/internal/metrics"
	"github.com/iliyamo/campus-auth/internal/model"
	"github.com/iliyamo/campus-auth/internal/service"
	"github.com/iliyamo/campus-auth/internal/utils"
)

// TokenVerifier verifies access tokens (service.TokenIssuer).
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, raw string) (*model.AccessTokenClaims, error)
}

// SessionChecker confirms and extends device sessions (service.SessionStore).
type SessionChecker interface {
	IsSessionValid(ctx context.Context, userID, fingerprint string) (bool, error)
	Touch(ctx context.Context, userID, fingerprint string) error
}

// RequestCounter is an atomic fixed-window counter (repository.RateCounter).
type RequestCounter interface {
	Incr(ctx context.Context, subject, route string, window time.Duration) (int64, time.Duration, error)
}

// LoginLimiter is the login attempt accounting used by LoginAttemptGuard
// (service.SessionStore).
type LoginLimiter interface {
	IsRateLimited(ctx context.Context, email, address string) (bool, time.Duration, error)
	RecordLoginAttempt(ctx context.Context, a model.LoginAttempt) error
}

// GateConfig tunes the gate.
type GateConfig struct {
	// DefaultRateLimit applies to policies without their own limit; nil
	// disables limiting for those routes.
	DefaultRateLimit *RateLimitPolicy
	// StoreTimeout bounds the store round trips made for one request.
	StoreTimeout time.Duration
	// IPExtractor resolves the client address.  It must be the same
	// extractor the echo instance uses so handlers and the gate derive the
	// same device fingerprint.
	IPExtractor echo.IPExtractor
}

// GateDeps are the collaborators of the gate.  Events and Metrics may be nil.
type GateDeps struct {
	Tokens   TokenVerifier
	Sessions SessionChecker
	Counter  RequestCounter
	Logins   LoginLimiter
	Events   service.EventSink
	Metrics  *metrics.Metrics
	Log      *slog.Logger
}

// Gate is the request-time orchestrator in front of protected routes.
type Gate struct {
	cfg GateConfig
	GateDeps
}

func NewGate(cfg GateConfig, deps GateDeps) *Gate {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.IPExtractor == nil {
		cfg.IPExtractor = echo.ExtractIPDirect()
	}
	if deps.Events == nil {
		deps.Events = service.NopEvents{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Gate{cfg: cfg, GateDeps: deps}
}

// ClientIP resolves the request's client address with the configured
// extractor.
func (g *Gate) ClientIP(r *http.Request) string {
	return g.cfg.IPExtractor(r)
}

// Authenticate runs the token, policy and session checks for one request.
// It returns (nil, nil) for an anonymous request the policy admits.  Expected
// denials are *Rejection; any other error is a store outage and the caller
// must deny.
func (g *Gate) Authenticate(ctx context.Context, r *http.Request, p Policy) (*Identity, error) {
	raw, ok := BearerToken(r)
	if !ok {
		if !p.RequireAuth {
			return nil, nil
		}
		return nil, reject(CodeMissingToken)
	}

	claims, err := g.Tokens.VerifyAccessToken(ctx, raw)
	if errors.Is(err, service.ErrInvalidToken) {
		return nil, reject(CodeInvalidToken)
	}
	if err != nil {
		return nil, err
	}

	if rej := p.check(claims); rej != nil {
		return nil, rej
	}

	addr := g.ClientIP(r)
	fp := utils.FingerprintFromRequest(r, addr)
	valid, err := g.Sessions.IsSessionValid(ctx, claims.UserID, fp)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, reject(CodeInvalidSession)
	}
	// The touch must land before the handler runs, otherwise a session at
	// the edge of its TTL could expire mid-request.
	if err := g.Sessions.Touch(ctx, claims.UserID, fp); err != nil {
		if errors.Is(err, service.ErrInvalidSession) {
			return nil, reject(CodeInvalidSession)
		}
		return nil, err
	}

	return &Identity{Claims: claims, AccessToken: raw, DeviceFingerprint: fp, Address: addr}, nil
}

// Require protects a route or group with p.  On success the identity is
// attached to the context before the route's rate limit is counted.
func (g *Gate) Require(p Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), g.cfg.StoreTimeout)
			defer cancel()

			id, err := g.Authenticate(ctx, c.Request(), p)
			if err != nil {
				return g.deny(c, err)
			}
			if id != nil {
				attachIdentity(c, id)
			}
			if err := g.limit(ctx, c, p, id); err != nil {
				return g.deny(c, err)
			}
			return next(c)
		}
	}
}

// deny writes the response for a failed check.  Anything that is not a
// Rejection is an outage and fails closed.
func (g *Gate) deny(c echo.Context, err error) error {
	var rej *Rejection
	if !errors.As(err, &rej) {
		g.Log.Error("access gate store failure", "path", c.Path(), "err", err)
		g.Metrics.StoreUnavailable()
		rej = reject(CodeServiceUnavailable)
	}
	g.Metrics.Rejected(rej.Code)
	return writeRejection(c, rej)
}

// BearerToken extracts the token from "Authorization: Bearer <token>".  The
// scheme is matched case-insensitively; anything else counts as absent.
func BearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get(echo.HeaderAuthorization)
	const prefix = "bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	raw := strings.TrimSpace(auth[len(prefix):])
	return raw, raw != ""
}
