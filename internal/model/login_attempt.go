package model

import "time"

// LoginAttempt is one entry in the bounded per-(email, address) history.
type LoginAttempt struct {
	Email             string    `json:"email"`
	IPAddress         string    `json:"ip_address"`
	Timestamp         time.Time `json:"timestamp"`
	Success           bool      `json:"success"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	DeviceFingerprint string    `json:"device_fingerprint,omitempty"`
}
