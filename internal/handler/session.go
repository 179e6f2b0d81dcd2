package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-auth/internal/middleware"
	"github.com/iliyamo/campus-auth/internal/model"
	"github.com/iliyamo/campus-auth/internal/queue"
	"github.com/iliyamo/campus-auth/internal/service"
)

type sessionPart struct {
	SessionID    string               `json:"session_id"`
	Device       model.DeviceMetadata `json:"device"`
	IPAddress    string               `json:"ip_address"`
	LoginTime    time.Time            `json:"login_time"`
	LastActivity time.Time            `json:"last_activity"`
	Current      bool                 `json:"current"`
}

func toSessionPart(rec model.SessionRecord, currentFP string) sessionPart {
	return sessionPart{
		SessionID:    rec.SessionID,
		Device:       rec.Device,
		IPAddress:    rec.IPAddress,
		LoginTime:    rec.LoginTime,
		LastActivity: rec.LastActivity,
		Current:      rec.DeviceFingerprint == currentFP,
	}
}

// Me returns the caller as seen by the gate, plus the current session.
func (h *AuthHandler) Me(c echo.Context) error {
	id := middleware.IdentityFrom(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	resp := echo.Map{
		"user": userPart{
			ID:               id.UserID(),
			Email:            id.Claims.Email,
			UserType:         id.Claims.UserType,
			UniversityID:     id.Claims.UniversityID,
			UniversityName:   id.Claims.UniversityName,
			UniversityDomain: id.Claims.UniversityDomain,
			IsVerified:       id.Claims.IsVerified,
		},
	}
	sess, err := h.Sessions.GetSession(ctx, id.UserID(), id.DeviceFingerprint)
	switch {
	case err == nil:
		resp["session"] = toSessionPart(*sess, id.DeviceFingerprint)
	case !errors.Is(err, service.ErrInvalidSession):
		return storeFailure(c, h.Log, "load session", err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ListSessions returns the caller's live devices, most recently active
// first, flagging the one making the request.
func (h *AuthHandler) ListSessions(c echo.Context) error {
	id := middleware.IdentityFrom(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	list, err := h.Sessions.ListActiveSessions(ctx, id.UserID())
	if err != nil {
		return storeFailure(c, h.Log, "list sessions", err)
	}
	out := make([]sessionPart, 0, len(list))
	for _, rec := range list {
		out = append(out, toSessionPart(rec, id.DeviceFingerprint))
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": out})
}

// RevokeSession logs one of the caller's devices out by session id.
// Revoking the current device also blacklists the access token in use.
func (h *AuthHandler) RevokeSession(c echo.Context) error {
	id := middleware.IdentityFrom(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	rec, err := h.Sessions.FindSessionByID(ctx, id.UserID(), c.Param("id"))
	if errors.Is(err, service.ErrInvalidSession) {
		return fail(c, http.StatusNotFound, CodeSessionNotFound, "session not found")
	}
	if err != nil {
		return storeFailure(c, h.Log, "find session", err)
	}
	if err := h.Sessions.InvalidateSession(ctx, id.UserID(), rec.DeviceFingerprint); err != nil {
		return storeFailure(c, h.Log, "invalidate session", err)
	}
	if rec.DeviceFingerprint == id.DeviceFingerprint {
		if err := h.Tokens.BlacklistToken(ctx, id.AccessToken, h.Tokens.RemainingLifetime(id.Claims)); err != nil {
			return storeFailure(c, h.Log, "blacklist access token", err)
		}
	}
	h.Metrics.Session("revoked")
	h.Events.Publish(ctx, queue.AuthEvent{
		Type:              queue.EventSessionRevoked,
		UserID:            id.UserID(),
		SessionID:         rec.SessionID,
		DeviceFingerprint: rec.DeviceFingerprint,
		IPAddress:         id.Address,
		OccurredAt:        time.Now().UTC(),
	})
	return c.NoContent(http.StatusNoContent)
}

// Ping answers policy-protected probe routes so collaborators can check what
// a token is admitted to.
func Ping(c echo.Context) error {
	id := middleware.IdentityFrom(c)
	resp := echo.Map{"ok": true}
	if id != nil {
		resp["user_id"] = id.UserID()
		resp["user_type"] = id.Claims.UserType
	}
	return c.JSON(http.StatusOK, resp)
}
