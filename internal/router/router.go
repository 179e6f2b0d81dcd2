package router // package router defines how HTTP routes are registered for the API

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/campus-auth/internal/handler"
	"github.com/iliyamo/campus-auth/internal/middleware"
)

// New builds the echo instance with the shared middleware stack.  ip must be
// the extractor the gate was built with so handlers and the gate agree on the
// client address.
func New(ip echo.IPExtractor, log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = ip
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.BodyLimit("1M"))
	return e
}

// RegisterRoutes registers the operational endpoints: liveness, readiness
// and metrics.  metrics may be nil.
func RegisterRoutes(e *echo.Echo, ready *handler.Readiness, metrics http.Handler) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", ready.Ready)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterAuth registers the authentication and session routes.  Routes
// under /v1/auth are reached without an access token and are limited per
// client address with authLimit (nil for none); everything else goes
// through the gate.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, gate *middleware.Gate, authLimit *middleware.RateLimitPolicy) {
	var limits []echo.MiddlewareFunc
	if authLimit != nil {
		limits = append(limits, gate.RateLimit(*authLimit))
	}
	g := e.Group("/v1/auth", limits...)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login, gate.LoginAttemptGuard())
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	// logout-all needs to know who is asking, so it is gated
	e.POST("/v1/auth/logout-all", a.LogoutAll, gate.Require(middleware.Authenticated()))

	// Session management stays reachable for members without a university
	// so that any account can see and end its sessions.
	me := e.Group("/v1", gate.Require(middleware.Authenticated()))
	me.GET("/me", a.Me)
	me.GET("/sessions", a.ListSessions)
	me.DELETE("/sessions/:id", a.RevokeSession)

	e.GET("/v1/members/ping", handler.Ping, gate.Require(middleware.AnyMember()))
	e.GET("/v1/verified/ping", handler.Ping, gate.Require(middleware.VerifiedMember()))
	e.GET("/v1/faculty/ping", handler.Ping, gate.Require(middleware.FacultyStaffOnly()))
	e.GET("/v1/students/ping", handler.Ping, gate.Require(middleware.StudentsOnly()))
	e.GET("/v1/public/ping", handler.Ping, gate.Require(middleware.Optional()))
}
