package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrCiphertext is returned by SecretBox.Open for malformed or tampered input.
var ErrCiphertext = errors.New("invalid ciphertext")

// DeriveKey expands secret into an n-byte key bound to info using
// HKDF-SHA256.  Distinct info strings give independent keys from the same
// deployment secret.
func DeriveKey(secret, info string, n int) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("derive key: empty secret")
	}
	key := make([]byte, n)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// SecretBox encrypts small secrets at rest with XChaCha20-Poly1305.
type SecretBox struct {
	key []byte
}

// NewSecretBox derives the encryption key from the deployment secret.
func NewSecretBox(secret string) (*SecretBox, error) {
	key, err := DeriveKey(secret, "campus-auth/secretbox", chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return &SecretBox{key: key}, nil
}

// Seal encrypts plaintext and returns base64url(nonce || ciphertext).
func (b *SecretBox) Seal(plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (b *SecretBox) Open(encoded string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrCiphertext
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCiphertext
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrCiphertext
	}
	return pt, nil
}
