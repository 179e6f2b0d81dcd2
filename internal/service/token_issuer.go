package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/campus-auth/internal/model"
	"github.com/iliyamo/campus-auth/internal/repository"
	"github.com/iliyamo/campus-auth/internal/utils"
)

// ErrInvalidToken covers every expected token failure: bad signature,
// wrong issuer/audience/algorithm, expiry, blacklisting, and refresh tokens
// that no longer match their stored device binding.  Callers answer 401.
var ErrInvalidToken = errors.New("invalid token")

// RefreshStore is the refresh-token binding store used by TokenIssuer.
type RefreshStore interface {
	StoreRefresh(ctx context.Context, rec model.RefreshTokenRecord, ttl time.Duration) error
	GetRefresh(ctx context.Context, userID, fingerprint string) (*model.RefreshTokenRecord, error)
	RevokeRefresh(ctx context.Context, userID, fingerprint string) error
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
}

// Blacklist is the revoked access token store used by TokenIssuer.
type Blacklist interface {
	Add(ctx context.Context, tokenHash string, ttl time.Duration) error
	Contains(ctx context.Context, tokenHash string) (bool, error)
}

// TokenConfig carries the signing material and lifetimes.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string // derived from AccessSecret when empty
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int64 // access token lifetime in seconds
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenIssuer signs and verifies access and refresh tokens, keeps the
// access-token blacklist and the per-device refresh bindings.
type TokenIssuer struct {
	accessKey  []byte
	refreshKey []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration

	refresh   RefreshStore
	blacklist Blacklist
	log       *slog.Logger
	now       func() time.Time
}

// NewTokenIssuer validates cfg and builds the issuer.
func NewTokenIssuer(cfg TokenConfig, refresh RefreshStore, blacklist Blacklist, log *slog.Logger) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" {
		return nil, errors.New("token issuer: access secret required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token issuer: lifetimes must be positive")
	}
	refreshKey := []byte(cfg.RefreshSecret)
	if cfg.RefreshSecret == "" {
		k, err := utils.DeriveKey(cfg.AccessSecret, "campus-auth/refresh-token", 32)
		if err != nil {
			return nil, fmt.Errorf("token issuer: %w", err)
		}
		refreshKey = k
	}
	if log == nil {
		log = slog.Default()
	}
	return &TokenIssuer{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: refreshKey,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		refresh:    refresh,
		blacklist:  blacklist,
		log:        log,
		now:        time.Now,
	}, nil
}

// WithClock replaces the time source.  Tests only.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	t.now = now
	return t
}

// AccessTTL is the configured access token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration { return t.accessTTL }

// IssueAccessToken signs a 15-minute (by default) HS256 access token for p.
// It has no side effects beyond signing.
func (t *TokenIssuer) IssueAccessToken(p model.Principal, tenant model.TenantContext, fingerprint string) (string, time.Time, error) {
	now := t.now().UTC()
	exp := now.Add(t.accessTTL)
	claims := model.AccessTokenClaims{
		UserID:           p.ID,
		Email:            p.Email,
		UniversityID:     tenant.UniversityID,
		UniversityName:   tenant.UniversityName,
		UniversityDomain: tenant.UniversityDomain,
		UserType:         p.Type,
		IsVerified:       p.IsVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	// A random jti keeps two tokens issued in the same second distinct, so
	// blacklisting one never hits the other.
	jti, err := utils.RandomToken(12)
	if err != nil {
		return "", time.Time{}, err
	}
	claims.ID = jti
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.accessKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// IssueRefreshToken signs a refresh token bound to (p, fingerprint) and
// stores its binding with a TTL equal to its lifetime, replacing whatever
// refresh token that device held before.
func (t *TokenIssuer) IssueRefreshToken(ctx context.Context, p model.Principal, tenantID, fingerprint string) (string, time.Time, error) {
	now := t.now().UTC()
	exp := now.Add(t.refreshTTL)
	jti, err := utils.RandomToken(16)
	if err != nil {
		return "", time.Time{}, err
	}
	claims := model.RefreshTokenClaims{
		UserID:            p.ID,
		Email:             p.Email,
		UniversityID:      tenantID,
		DeviceFingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   p.ID,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.refreshKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	rec := model.RefreshTokenRecord{
		UserID:            p.ID,
		Email:             p.Email,
		UniversityID:      tenantID,
		DeviceFingerprint: fingerprint,
		TokenHash:         utils.HashToken(signed),
		IssuedAt:          now,
		ExpiresAt:         exp,
	}
	if err := t.refresh.StoreRefresh(ctx, rec, t.refreshTTL); err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueTokenPair issues an access token and a refresh token for one device.
func (t *TokenIssuer) IssueTokenPair(ctx context.Context, p model.Principal, tenant model.TenantContext, fingerprint string) (TokenPair, error) {
	access, accessExp, err := t.IssueAccessToken(p, tenant, fingerprint)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := t.IssueRefreshToken(ctx, p, tenant.UniversityID, fingerprint)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        int64(t.accessTTL / time.Second),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (t *TokenIssuer) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	}
}

// VerifyAccessToken checks signature, algorithm, issuer, audience and expiry,
// then rejects tokens on the blacklist.  Expected failures return
// ErrInvalidToken; a blacklist outage returns repository.ErrUnavailable.
func (t *TokenIssuer) VerifyAccessToken(ctx context.Context, raw string) (*model.AccessTokenClaims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	var claims model.AccessTokenClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return t.accessKey, nil
	}, t.parserOptions()...)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.UserID != claims.Subject {
		return nil, ErrInvalidToken
	}
	listed, err := t.blacklist.Contains(ctx, utils.HashToken(raw))
	if err != nil {
		return nil, err
	}
	if listed {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// VerifyRefreshToken checks the refresh token's signature and registered
// claims, then requires that its (principal, fingerprint) binding still holds
// exactly this token.  Any rotation or revocation since issuance fails here.
func (t *TokenIssuer) VerifyRefreshToken(ctx context.Context, raw string) (*model.RefreshTokenClaims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	var claims model.RefreshTokenClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return t.refreshKey, nil
	}, t.parserOptions()...)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.DeviceFingerprint == "" {
		return nil, ErrInvalidToken
	}
	rec, err := t.refresh.GetRefresh(ctx, claims.UserID, claims.DeviceFingerprint)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !utils.SecureCompare(rec.TokenHash, utils.HashToken(raw)) {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// RefreshAccessToken exchanges a refresh token for a new pair.  The token
// must belong to p and to the presenting device.  The old binding is deleted
// before the new one is written, so a refresh token works exactly once; a
// failure between the two steps leaves the device logged out, never with two
// live tokens.
func (t *TokenIssuer) RefreshAccessToken(ctx context.Context, raw string, p model.Principal, fingerprint string) (TokenPair, error) {
	claims, err := t.VerifyRefreshToken(ctx, raw)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.UserID != p.ID || !utils.SecureCompare(claims.DeviceFingerprint, fingerprint) {
		t.log.Warn("refresh token presented from a different principal or device",
			"user_id", claims.UserID, "principal", p.ID)
		return TokenPair{}, ErrInvalidToken
	}
	if err := t.refresh.RevokeRefresh(ctx, claims.UserID, claims.DeviceFingerprint); err != nil {
		return TokenPair{}, err
	}
	return t.IssueTokenPair(ctx, p, p.Tenant(), fingerprint)
}

// RevokeRefreshToken deletes the binding for one device unconditionally.
func (t *TokenIssuer) RevokeRefreshToken(ctx context.Context, userID, fingerprint string) error {
	return t.refresh.RevokeRefresh(ctx, userID, fingerprint)
}

// RevokeAllRefreshTokens deletes every binding of userID (logout everywhere).
func (t *TokenIssuer) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	n, err := t.refresh.RevokeAllForUser(ctx, userID)
	if err != nil {
		return err
	}
	t.log.Info("revoked refresh tokens", "user_id", userID, "count", n)
	return nil
}

// BlacklistToken rejects raw until it would have expired anyway.  A token
// with no lifetime left needs no entry.
func (t *TokenIssuer) BlacklistToken(ctx context.Context, raw string, remaining time.Duration) error {
	if remaining <= 0 {
		return nil
	}
	return t.blacklist.Add(ctx, utils.HashToken(raw), remaining)
}

// RemainingLifetime is how long claims stay valid from now.
func (t *TokenIssuer) RemainingLifetime(claims *model.AccessTokenClaims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Sub(t.now())
}
