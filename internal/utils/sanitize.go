package utils

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

// Boundary hygiene only.  Collaborators still use parameterized queries.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(union\s+(all\s+)?select|select\s+.+\s+from|insert\s+into|delete\s+from|drop\s+(table|database)|update\s+\w+\s+set)\b`),
	regexp.MustCompile(`(?i)('|")\s*(or|and)\s+('|")?\d+('|")?\s*=\s*('|")?\d+`),
	regexp.MustCompile(`(--|#|/\*)\s*$`),
	regexp.MustCompile(`(?i)<\s*script\b|javascript\s*:|on(error|load|click|mouseover)\s*=`),
	regexp.MustCompile(`\.\./|\.\.\\`),
	regexp.MustCompile(`(?i)\$\{jndi:`),
}

// DetectInjection reports whether s matches a known SQL, script, path
// traversal or template injection pattern.
func DetectInjection(s string) bool {
	for _, re := range injectionPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// SanitizeInput trims s, drops control characters and HTML-escapes the rest.
func SanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	return html.EscapeString(s)
}

var emailRE = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// NormalizeEmail lower-cases and trims an email address.  ok is false when
// the result is not a plausible address.
func NormalizeEmail(s string) (email string, ok bool) {
	email = strings.ToLower(strings.TrimSpace(s))
	return email, len(email) <= 254 && emailRE.MatchString(email)
}
