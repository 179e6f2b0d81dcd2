package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginRequest(email string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"`+email+`","password":"pw"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = clientAddr + ":40000"
	return req
}

// loginServer answers with status and counts handler invocations.
func loginServer(g *Gate, status *int, calls *int) *echo.Echo {
	e := echo.New()
	e.POST("/login", func(c echo.Context) error {
		*calls++
		body, _ := io.ReadAll(c.Request().Body)
		if !strings.Contains(string(body), `"password":"pw"`) {
			return c.NoContent(http.StatusTeapot)
		}
		if *status != http.StatusOK {
			SetLoginFailure(c, "invalid_credentials")
		}
		return c.NoContent(*status)
	}, g.LoginAttemptGuard())
	return e
}

func TestLoginAttemptGuard_ThrottlesAfterFailures(t *testing.T) {
	f := newGateFixture(t, nil)
	status, calls := http.StatusUnauthorized, 0
	e := loginServer(f.gate, &status, &calls)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, loginRequest("Ana@Uni.edu"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, loginRequest("ana@uni.edu"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeLoginRateLimited, errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 5, calls, "throttled attempt must not reach the handler")

	limited, _, err := f.sessions.IsRateLimited(t.Context(), "ana@uni.edu", clientAddr)
	require.NoError(t, err)
	assert.True(t, limited)
}

func TestLoginAttemptGuard_SuccessesDoNotCount(t *testing.T) {
	f := newGateFixture(t, nil)
	status, calls := http.StatusOK, 0
	e := loginServer(f.gate, &status, &calls)

	for i := 0; i < 8; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, loginRequest("ana@uni.edu"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 8, calls)
}

func TestLoginAttemptGuard_ServerErrorsNotRecorded(t *testing.T) {
	f := newGateFixture(t, nil)
	status, calls := http.StatusServiceUnavailable, 0
	e := loginServer(f.gate, &status, &calls)

	for i := 0; i < 6; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, loginRequest("ana@uni.edu"))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}
	assert.Equal(t, 6, calls)
}

func TestLoginAttemptGuard_PassesMalformedBody(t *testing.T) {
	f := newGateFixture(t, nil)
	status, calls := http.StatusOK, 0
	e := loginServer(f.gate, &status, &calls)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 1, calls)
}
