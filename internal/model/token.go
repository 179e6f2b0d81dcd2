package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenClaims is the payload of a signed access token.  It is never
// persisted; validity derives from signature, expiry and blacklist absence.
type AccessTokenClaims struct {
	UserID           string        `json:"uid"`
	Email            string        `json:"email"`
	UniversityID     string        `json:"university_id,omitempty"`
	UniversityName   string        `json:"university_name,omitempty"`
	UniversityDomain string        `json:"university_domain,omitempty"`
	UserType         PrincipalType `json:"user_type"`
	IsVerified       bool          `json:"is_verified"`
	jwt.RegisteredClaims
}

// RefreshTokenClaims is the payload of a signed refresh token.  The
// (UserID, DeviceFingerprint) pair names the stored record it must match.
type RefreshTokenClaims struct {
	UserID            string `json:"uid"`
	Email             string `json:"email"`
	UniversityID      string `json:"university_id,omitempty"`
	DeviceFingerprint string `json:"dfp"`
	jwt.RegisteredClaims
}

// RefreshTokenRecord is the stored binding of a refresh token to one device.
// Only the SHA-256 hash of the signed token is kept.
type RefreshTokenRecord struct {
	UserID            string    `json:"user_id"`
	Email             string    `json:"email"`
	UniversityID      string    `json:"university_id,omitempty"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	TokenHash         string    `json:"token_hash"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}
