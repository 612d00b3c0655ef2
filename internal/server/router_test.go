package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/fraudhawk/internal/handlers"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(ctx context.Context) error { return p.err }

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthz(t *testing.T) {
	router := NewRouter(handlers.NewHealthHandler(nil, nil, nil, nil))

	w := get(t, router, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestReadyzAllHealthy(t *testing.T) {
	h := handlers.NewHealthHandler(
		&fakePinger{},
		func() bool { return true },
		func() string { return "running" },
		func(ctx context.Context) map[string]interface{} {
			return map[string]interface{}{"enabled": true}
		},
	)
	router := NewRouter(h)

	w := get(t, router, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string                 `json:"status"`
		Checks map[string]interface{} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "ok", body.Checks["nats"])
	assert.Equal(t, "running", body.Checks["consumer"])
}

func TestReadyzStorageDown(t *testing.T) {
	h := handlers.NewHealthHandler(
		&fakePinger{err: errors.New("connection refused")},
		func() bool { return true },
		nil, nil,
	)
	router := NewRouter(h)

	w := get(t, router, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyzBrokerDisconnected(t *testing.T) {
	h := handlers.NewHealthHandler(
		&fakePinger{},
		func() bool { return false },
		nil, nil,
	)
	router := NewRouter(h)

	w := get(t, router, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(handlers.NewHealthHandler(nil, nil, nil, nil))

	w := get(t, router, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
