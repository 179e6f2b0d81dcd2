package model

import "time"

// DeviceMetadata describes the client a session was opened from.
type DeviceMetadata struct {
	UserAgent string `json:"user_agent"`
	Platform  string `json:"platform,omitempty"`
	Language  string `json:"language,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

// SessionRecord is one principal authenticated on one device.  It shares its
// (UserID, DeviceFingerprint) key with the device's RefreshTokenRecord.
type SessionRecord struct {
	SessionID         string         `json:"session_id"`
	UserID            string         `json:"user_id"`
	DeviceFingerprint string         `json:"device_fingerprint"`
	Device            DeviceMetadata `json:"device"`
	IPAddress         string         `json:"ip_address"`
	LoginTime         time.Time      `json:"login_time"`
	LastActivity      time.Time      `json:"last_activity"`
	IsActive          bool           `json:"is_active"`
}

// ExpiredAt reports whether the session is older than maxAge at now.
func (s SessionRecord) ExpiredAt(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LoginTime) > maxAge
}
