// Package queue defines message payloads exchanged over the message broker
// and the consumer that turns them into the security audit log.
package queue

import "time"

// AuthEventsQueue is the durable queue auth events are published to.
const AuthEventsQueue = "auth.events"

// AuthEventType names a session lifecycle transition worth auditing.
type AuthEventType string

const (
	EventLoginSucceeded  AuthEventType = "login.succeeded"
	EventLoginFailed     AuthEventType = "login.failed"
	EventLoginThrottled  AuthEventType = "login.throttled"
	EventTokenRefreshed  AuthEventType = "token.refreshed"
	EventLogout          AuthEventType = "logout"
	EventLogoutAll       AuthEventType = "logout.all"
	EventSessionRevoked  AuthEventType = "session.revoked"
	EventPrincipalJoined AuthEventType = "principal.registered"
)

// AuthEvent is published after a session lifecycle transition.  It carries
// enough context for the audit log and for downstream analytics without
// querying the store; it never carries tokens or passwords.
type AuthEvent struct {
	Type              AuthEventType `json:"type"`
	UserID            string        `json:"user_id,omitempty"`
	Email             string        `json:"email,omitempty"`
	UniversityID      string        `json:"university_id,omitempty"`
	SessionID         string        `json:"session_id,omitempty"`
	DeviceFingerprint string        `json:"device_fingerprint,omitempty"`
	IPAddress         string        `json:"ip_address,omitempty"`
	Reason            string        `json:"reason,omitempty"`
	OccurredAt        time.Time     `json:"occurred_at"`
}
