// Package repository defines the persistence layer: Redis-backed stores for
// the session and token lifecycle and the MySQL principal directory.  The
// sentinel errors below let higher layers distinguish a missing record from
// a store outage.
package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a keyed record does not exist (never written,
// deleted, or expired by TTL).
var ErrNotFound = errors.New("not found")

// ErrUnavailable wraps every failure talking to a backing store.  Callers
// must treat it as an infrastructure fault and fail closed, never as
// "credential invalid".
var ErrUnavailable = errors.New("store unavailable")

// ErrEmailExists is returned when registering an email that is already taken.
var ErrEmailExists = errors.New("email already exists")

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
