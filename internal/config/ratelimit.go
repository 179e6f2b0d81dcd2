package config

import "time"

// RateLimitConfig is the default per-route limit applied by the access gate
// when a route does not declare its own.  Window is the counter lifetime and
// Max the number of requests allowed inside one window.  AuthMax is the
// stricter per-address limit on the unauthenticated /v1/auth routes.
type RateLimitConfig struct {
	Enabled bool
	Window  time.Duration
	Max     int
	AuthMax int
}

func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled: envBool("RATE_LIMIT_ENABLED", true),
		Window:  envDur("RATE_LIMIT_WINDOW", time.Minute),
		Max:     envInt("RATE_LIMIT_MAX", 120),
		AuthMax: envInt("AUTH_RATE_LIMIT_MAX", 20),
	}
	if def.Max < 1 {
		def.Max = 1
	}
	if def.AuthMax < 1 {
		def.AuthMax = 1
	}
	if def.Window < time.Second {
		def.Window = time.Second
	}
	return def
}
