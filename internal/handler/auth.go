package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-auth/internal/metrics"
	"github.com/iliyamo/campus-auth/internal/middleware"
	"github.com/iliyamo/campus-auth/internal/model"
	"github.com/iliyamo/campus-auth/internal/queue"
	"github.com/iliyamo/campus-auth/internal/repository"
	"github.com/iliyamo/campus-auth/internal/service"
	"github.com/iliyamo/campus-auth/internal/utils"
)

// PrincipalDirectory is the account store (repository.UserRepo).
type PrincipalDirectory interface {
	Create(ctx context.Context, p model.Principal, password string, cost int) (model.Principal, error)
	GetByEmail(ctx context.Context, email string) (model.Principal, error)
	GetByID(ctx context.Context, id string) (model.Principal, error)
}

// AuthDeps are the collaborators of AuthHandler.  Events and Metrics may be
// nil.
type AuthDeps struct {
	Users    PrincipalDirectory
	Tokens   *service.TokenIssuer
	Sessions *service.SessionStore
	Gate     *middleware.Gate
	Events   service.EventSink
	Metrics  *metrics.Metrics
	Log      *slog.Logger
}

// AuthHandler bundles the login, token and session endpoints.
type AuthHandler struct {
	AuthDeps
	bcryptCost int
	timeout    time.Duration
}

func NewAuthHandler(bcryptCost int, timeout time.Duration, deps AuthDeps) *AuthHandler {
	if deps.Events == nil {
		deps.Events = service.NopEvents{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AuthHandler{AuthDeps: deps, bcryptCost: bcryptCost, timeout: timeout}
}

// ----- DTOs -----

type deviceReq struct {
	Platform string `json:"platform"`
	Timezone string `json:"timezone"`
}

type registerReq struct {
	Email            string    `json:"email"`
	Password         string    `json:"password"`
	UserType         string    `json:"user_type"` // student | faculty | staff
	UniversityID     string    `json:"university_id"`
	UniversityName   string    `json:"university_name"`
	UniversityDomain string    `json:"university_domain"`
	Device           deviceReq `json:"device"`
}

type loginReq struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Device   deviceReq `json:"device"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type userPart struct {
	ID               string              `json:"id"`
	Email            string              `json:"email"`
	UserType         model.PrincipalType `json:"user_type"`
	UniversityID     string              `json:"university_id,omitempty"`
	UniversityName   string              `json:"university_name,omitempty"`
	UniversityDomain string              `json:"university_domain,omitempty"`
	IsVerified       bool                `json:"is_verified"`
}

type authResp struct {
	User             userPart  `json:"user"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	SessionID        string    `json:"session_id,omitempty"`
}

func toUserPart(p model.Principal) userPart {
	return userPart{
		ID:               p.ID,
		Email:            p.Email,
		UserType:         p.Type,
		UniversityID:     p.UniversityID,
		UniversityName:   p.UniversityName,
		UniversityDomain: p.UniversityDomain,
		IsVerified:       p.IsVerified,
	}
}

func tokenResp(p model.Principal, pair service.TokenPair, sessionID string) authResp {
	return authResp{
		User:             toUserPart(p),
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        pair.ExpiresIn,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		SessionID:        sessionID,
	}
}

// Register creates a principal and logs the new device in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidBody, "invalid body")
	}
	email, ok := utils.NormalizeEmail(req.Email)
	if !ok {
		return fail(c, http.StatusBadRequest, CodeInvalidEmail, "a valid email is required")
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		if errors.Is(err, utils.ErrPasswordTooLong) {
			return fail(c, http.StatusBadRequest, CodeWeakPassword, "password must be at most 72 bytes")
		}
		strength := utils.PasswordStrength(req.Password)
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":    CodeWeakPassword,
			"message":  "password is too weak",
			"score":    strength.Score,
			"feedback": strength.Feedback,
		})
	}
	userType := model.PrincipalType(strings.ToLower(strings.TrimSpace(req.UserType)))
	if userType == "" {
		userType = model.PrincipalStudent
	}
	if !userType.Valid() {
		return fail(c, http.StatusBadRequest, CodeInvalidBody, "user_type must be student, faculty or staff")
	}
	uni := model.TenantContext{
		UniversityID:     utils.SanitizeInput(req.UniversityID),
		UniversityName:   utils.SanitizeInput(req.UniversityName),
		UniversityDomain: strings.ToLower(utils.SanitizeInput(req.UniversityDomain)),
	}
	for _, v := range []string{req.UniversityID, req.UniversityName, req.UniversityDomain} {
		if utils.DetectInjection(v) {
			return fail(c, http.StatusBadRequest, CodeInvalidBody, "invalid university details")
		}
	}
	// An affiliation claim must at least match the email's domain.
	if uni.UniversityDomain != "" && !strings.HasSuffix(email, "@"+uni.UniversityDomain) {
		return fail(c, http.StatusBadRequest, CodeInvalidEmail, "email must belong to the university domain")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	p, err := h.Users.Create(ctx, model.Principal{
		Email:            email,
		Type:             userType,
		UniversityID:     uni.UniversityID,
		UniversityName:   uni.UniversityName,
		UniversityDomain: uni.UniversityDomain,
	}, req.Password, h.bcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return fail(c, http.StatusConflict, CodeEmailExists, "email already registered")
	}
	if err != nil {
		return storeFailure(c, h.Log, "create principal", err)
	}

	h.Events.Publish(ctx, queue.AuthEvent{
		Type:         queue.EventPrincipalJoined,
		UserID:       p.ID,
		Email:        p.Email,
		UniversityID: p.UniversityID,
		IPAddress:    h.Gate.ClientIP(c.Request()),
		OccurredAt:   time.Now().UTC(),
	})
	return h.startSession(c, ctx, p, req.Device, http.StatusCreated, "register")
}

// Login verifies credentials and opens a session for the presenting device.
// Every credential failure answers the same way so the response never tells
// whether the email exists.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidBody, "invalid body")
	}
	email, ok := utils.NormalizeEmail(req.Email)
	if !ok || req.Password == "" {
		return fail(c, http.StatusBadRequest, CodeInvalidBody, "email/password required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	p, err := h.Users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		utils.BurnPasswordCheck(req.Password)
		return h.loginFailed(c, ctx, email, "", "unknown_email")
	case err != nil:
		return storeFailure(c, h.Log, "load principal", err)
	}
	if !utils.VerifyPassword(p.PasswordHash, req.Password) {
		return h.loginFailed(c, ctx, email, p.ID, "bad_password")
	}
	if !p.IsActive {
		return h.loginFailed(c, ctx, email, p.ID, "inactive")
	}
	return h.startSession(c, ctx, p, req.Device, http.StatusOK, "login")
}

func (h *AuthHandler) loginFailed(c echo.Context, ctx context.Context, email, userID, reason string) error {
	middleware.SetLoginFailure(c, reason)
	h.Events.Publish(ctx, queue.AuthEvent{
		Type:       queue.EventLoginFailed,
		UserID:     userID,
		Email:      email,
		IPAddress:  h.Gate.ClientIP(c.Request()),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
	return fail(c, http.StatusUnauthorized, CodeInvalidCredentials, "invalid credentials")
}

// startSession opens the device session and issues the token pair bound to
// it.  The session is written first so a token never exists without one.
func (h *AuthHandler) startSession(c echo.Context, ctx context.Context, p model.Principal, dev deviceReq, status int, reason string) error {
	r := c.Request()
	addr := h.Gate.ClientIP(r)
	fp := utils.FingerprintFromRequest(r, addr)
	device := model.DeviceMetadata{
		UserAgent: r.UserAgent(),
		Platform:  utils.SanitizeInput(dev.Platform),
		Language:  r.Header.Get("Accept-Language"),
		Timezone:  utils.SanitizeInput(dev.Timezone),
	}

	sess, err := h.Sessions.CreateSession(ctx, p.ID, fp, device, addr)
	if err != nil {
		return storeFailure(c, h.Log, "create session", err)
	}
	pair, err := h.Tokens.IssueTokenPair(ctx, p, p.Tenant(), fp)
	if err != nil {
		return storeFailure(c, h.Log, "issue token pair", err)
	}
	h.Metrics.TokensIssued(reason)
	h.Metrics.Session("created")
	h.Events.Publish(ctx, queue.AuthEvent{
		Type:              queue.EventLoginSucceeded,
		UserID:            p.ID,
		Email:             p.Email,
		UniversityID:      p.UniversityID,
		SessionID:         sess.SessionID,
		DeviceFingerprint: fp,
		IPAddress:         addr,
		Reason:            reason,
		OccurredAt:        sess.LoginTime,
	})
	return c.JSON(status, tokenResp(p, pair, sess.SessionID))
}

// Refresh rotates a refresh token.  The device session must still be live
// and the principal still active; the presented token is dead afterwards.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return fail(c, http.StatusBadRequest, CodeInvalidBody, "refresh_token required")
	}
	raw := strings.TrimSpace(req.RefreshToken)
	r := c.Request()
	addr := h.Gate.ClientIP(r)
	fp := utils.FingerprintFromRequest(r, addr)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	claims, err := h.Tokens.VerifyRefreshToken(ctx, raw)
	if errors.Is(err, service.ErrInvalidToken) {
		return fail(c, http.StatusUnauthorized, CodeInvalidToken, "invalid refresh token")
	}
	if err != nil {
		return storeFailure(c, h.Log, "verify refresh token", err)
	}

	valid, err := h.Sessions.IsSessionValid(ctx, claims.UserID, fp)
	if err != nil {
		return storeFailure(c, h.Log, "check session", err)
	}
	if !valid {
		return fail(c, http.StatusUnauthorized, CodeInvalidSession, "session expired or revoked")
	}

	p, err := h.Users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !p.IsActive) {
		// The account is gone or disabled: end this device's session too.
		if err := h.Sessions.InvalidateSession(ctx, claims.UserID, fp); err != nil {
			h.Log.Warn("invalidate session of inactive principal", "user_id", claims.UserID, "err", err)
		}
		return fail(c, http.StatusUnauthorized, CodeInvalidToken, "invalid refresh token")
	}
	if err != nil {
		return storeFailure(c, h.Log, "load principal", err)
	}

	pair, err := h.Tokens.RefreshAccessToken(ctx, raw, p, fp)
	if errors.Is(err, service.ErrInvalidToken) {
		return fail(c, http.StatusUnauthorized, CodeInvalidToken, "invalid refresh token")
	}
	if err != nil {
		return storeFailure(c, h.Log, "rotate refresh token", err)
	}
	if err := h.Sessions.Touch(ctx, p.ID, fp); err != nil && !errors.Is(err, service.ErrInvalidSession) {
		h.Log.Warn("touch session after refresh", "user_id", p.ID, "err", err)
	}

	h.Metrics.TokensIssued("refresh")
	h.Events.Publish(ctx, queue.AuthEvent{
		Type:              queue.EventTokenRefreshed,
		UserID:            p.ID,
		UniversityID:      p.UniversityID,
		DeviceFingerprint: fp,
		IPAddress:         addr,
		OccurredAt:        time.Now().UTC(),
	})
	return c.JSON(http.StatusOK, tokenResp(p, pair, ""))
}

// Logout ends the presenting device's session.  The caller identifies itself
// with a valid bearer access token, which is blacklisted, or with its refresh
// token when the access token has already expired.
func (h *AuthHandler) Logout(c echo.Context) error {
	r := c.Request()
	addr := h.Gate.ClientIP(r)
	fp := utils.FingerprintFromRequest(r, addr)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var userID string
	if raw, ok := middleware.BearerToken(r); ok {
		claims, err := h.Tokens.VerifyAccessToken(ctx, raw)
		switch {
		case err == nil:
			userID = claims.UserID
			if err := h.Tokens.BlacklistToken(ctx, raw, h.Tokens.RemainingLifetime(claims)); err != nil {
				return storeFailure(c, h.Log, "blacklist access token", err)
			}
		case !errors.Is(err, service.ErrInvalidToken):
			return storeFailure(c, h.Log, "verify access token", err)
		}
	}
	if userID == "" {
		var req refreshReq
		_ = c.Bind(&req)
		if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
			claims, err := h.Tokens.VerifyRefreshToken(ctx, raw)
			switch {
			case err == nil:
				userID = claims.UserID
				fp = claims.DeviceFingerprint
			case !errors.Is(err, service.ErrInvalidToken):
				return storeFailure(c, h.Log, "verify refresh token", err)
			}
		}
	}
	if userID == "" {
		return fail(c, http.StatusUnauthorized, CodeMissingToken, "valid access or refresh token required")
	}

	if err := h.Sessions.InvalidateSession(ctx, userID, fp); err != nil {
		return storeFailure(c, h.Log, "invalidate session", err)
	}
	h.Metrics.Session("revoked")
	h.Events.Publish(ctx, queue.AuthEvent{
		Type:              queue.EventLogout,
		UserID:            userID,
		DeviceFingerprint: fp,
		IPAddress:         addr,
		OccurredAt:        time.Now().UTC(),
	})
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll ends every session of the caller and blacklists the access token
// used for this request.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	id := middleware.IdentityFrom(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	if err := h.Sessions.InvalidateAllSessions(ctx, id.UserID()); err != nil {
		return storeFailure(c, h.Log, "invalidate all sessions", err)
	}
	if err := h.Tokens.BlacklistToken(ctx, id.AccessToken, h.Tokens.RemainingLifetime(id.Claims)); err != nil {
		return storeFailure(c, h.Log, "blacklist access token", err)
	}
	h.Metrics.Session("revoked_all")
	h.Events.Publish(ctx, queue.AuthEvent{
		Type:         queue.EventLogoutAll,
		UserID:       id.UserID(),
		UniversityID: id.Claims.UniversityID,
		IPAddress:    id.Address,
		OccurredAt:   time.Now().UTC(),
	})
	return c.NoContent(http.StatusNoContent)
}
