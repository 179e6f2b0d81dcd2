package utils // package utils holds the stateless credential helpers shared by every auth component

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 digests for token hashes
	"crypto/subtle" // constant-time comparison
	"encoding/base64"
	"encoding/hex"

	"github.com/google/uuid"
)

// RandomToken returns n bytes of cryptographically secure random data
// encoded as unpadded base64url.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// RandomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// NewSessionID returns a random (v4) UUID string.
func NewSessionID() string {
	return uuid.NewString()
}

// HashToken returns the SHA-256 hash of a token as a hex string.  Stores keep
// only this hash so a leaked key space cannot be replayed as credentials.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// SecureCompare reports whether a and b are equal without leaking the
// position of the first difference through timing.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
