package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/campus-auth/internal/repository"
)

func newContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	rec := httptest.NewRecorder()
	return e.NewContext(httptest.NewRequest(method, path, nil), rec), rec
}

func TestReadiness(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	c, rec := newContext(http.MethodGet, "/readyz")
	assert.NoError(t, NewReadiness(0, map[string]PingFunc{"redis": up, "mysql": up}).Ready(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"mysql":"up","redis":"up"}}`, rec.Body.String())

	c, rec = newContext(http.MethodGet, "/readyz")
	assert.NoError(t, NewReadiness(0, map[string]PingFunc{"redis": up, "mysql": down}).Ready(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"mysql":"down","redis":"up"}}`, rec.Body.String())
}

func TestStoreFailure(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, rec := newContext(http.MethodGet, "/")
	outage := fmt.Errorf("session get: %w: %w", repository.ErrUnavailable, errors.New("i/o timeout"))
	assert.NoError(t, storeFailure(c, log, "load", outage))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "timeout")

	c, rec = newContext(http.MethodGet, "/")
	assert.NoError(t, storeFailure(c, log, "load", errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPingAnonymous(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/v1/public/ping")
	assert.NoError(t, Ping(c))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}
