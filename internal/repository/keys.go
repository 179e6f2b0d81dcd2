package repository

import "strings"

// Keyspace builds the Redis key schema shared by every store.  Each
// namespace carries its own TTL, set by the store that writes it:
//
//	refresh_token:{principal}:{fingerprint}
//	session:{principal}:{fingerprint}
//	session_meta:{principal}:{fingerprint}
//	blacklist:{token hash}
//	login_attempts:{email}:{address}
//	rate_limit:{principal or address}:{route}
type Keyspace struct {
	Prefix string
}

func (k Keyspace) join(parts ...string) string {
	if k.Prefix != "" {
		parts = append([]string{k.Prefix}, parts...)
	}
	return strings.Join(parts, ":")
}

// pattern matches every key of one principal in namespace ns.  The prefix
// and the principal are both glob-escaped so SCAN cannot spill into another
// deployment's keys.
func (k Keyspace) pattern(ns, userID string) string {
	parts := []string{ns, escapeGlob(userID), "*"}
	if k.Prefix != "" {
		parts = append([]string{escapeGlob(k.Prefix)}, parts...)
	}
	return strings.Join(parts, ":")
}

func (k Keyspace) RefreshToken(userID, fingerprint string) string {
	return k.join("refresh_token", userID, fingerprint)
}

func (k Keyspace) RefreshTokenPattern(userID string) string {
	return k.pattern("refresh_token", userID)
}

func (k Keyspace) Session(userID, fingerprint string) string {
	return k.join("session", userID, fingerprint)
}

func (k Keyspace) SessionPattern(userID string) string {
	return k.pattern("session", userID)
}

func (k Keyspace) SessionMeta(userID, fingerprint string) string {
	return k.join("session_meta", userID, fingerprint)
}

func (k Keyspace) Blacklist(tokenHash string) string {
	return k.join("blacklist", tokenHash)
}

func (k Keyspace) LoginAttempts(email, address string) string {
	return k.join("login_attempts", strings.ToLower(email), address)
}

func (k Keyspace) RateLimit(subject, route string) string {
	return k.join("rate_limit", subject, route)
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
