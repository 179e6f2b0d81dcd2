package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
)

// Health is the liveness probe.  It never touches a dependency.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

// Readiness reports whether every dependency answers.
type Readiness struct {
	checks  map[string]PingFunc
	timeout time.Duration
}

func NewReadiness(timeout time.Duration, checks map[string]PingFunc) *Readiness {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Readiness{checks: checks, timeout: timeout}
}

// Ready answers 200 when all checks pass and 503 otherwise, naming each
// dependency's state.
func (r *Readiness) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), r.timeout)
	defer cancel()

	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	result := make(map[string]string, len(names))
	for _, name := range names {
		if err := r.checks[name](ctx); err != nil {
			status = http.StatusServiceUnavailable
			result[name] = "down"
			continue
		}
		result[name] = "up"
	}
	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
	}
	return c.JSON(status, echo.Map{"status": state, "checks": result})
}
