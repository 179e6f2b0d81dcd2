package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// DeviceFingerprint derives the device axis used for sessions and refresh
// tokens.  It is a one-way digest of the client's user agent, accept-language,
// accept-encoding and network address, so the same client yields the same
// value on every request.
//
// The address is taken as given.  Behind a reverse proxy callers must pass
// the client address resolved from a trusted header, otherwise every client
// of that proxy fingerprints as the proxy.
func DeviceFingerprint(userAgent, acceptLanguage, acceptEncoding, address string) string {
	h := sha256.New()
	for i, part := range []string{userAgent, acceptLanguage, acceptEncoding, address} {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(strings.TrimSpace(part)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FingerprintFromRequest applies DeviceFingerprint to the request headers.
// address is the resolved client IP (echo's RealIP in handlers).
func FingerprintFromRequest(r *http.Request, address string) string {
	return DeviceFingerprint(
		r.Header.Get("User-Agent"),
		r.Header.Get("Accept-Language"),
		r.Header.Get("Accept-Encoding"),
		address,
	)
}
