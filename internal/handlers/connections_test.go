package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func connectionRouter(registry Registrar) http.Handler {
	h := NewConnectionHandler(registry, zap.NewNop())
	r := chi.NewRouter()
	r.Post("/api/connections", h.Connect)
	r.Delete("/api/connections/{id}", h.Disconnect)
	return r
}

func TestConnectionHooks(t *testing.T) {
	registry := newFakeRegistrar()
	router := connectionRouter(registry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections", strings.NewReader(`{"connection_id":"abc="}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"abc="}, registry.registered())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections", strings.NewReader(`{"connection_id":"abc="}`)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/connections/abc=", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, registry.registered())

	// disconnecting twice is fine
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/connections/abc=", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConnectHookErrors(t *testing.T) {
	registry := newFakeRegistrar()
	router := connectionRouter(registry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	registry.failErr = storageDown()
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections", strings.NewReader(`{"connection_id":"x"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/connections/x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	rec := httptest.NewRecorder()
	Health(map[string]HealthCheck{"redis": ok, "mongo": ok}, zap.NewNop())(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"redis":"up","mongo":"up"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Health(map[string]HealthCheck{"redis": ok, "mongo": down}, zap.NewNop())(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"redis":"up","mongo":"down"}}`, rec.Body.String())
}
