// Package handlers implements the detector's HTTP endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger verifies storage connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store Pinger

	// streamConnected reports broker connectivity; nil means no broker is
	// wired (tests, tooling).
	streamConnected func() bool

	// consumerState reports the consume loop's lifecycle phase.
	consumerState func() string

	// dlqStats reports dead-letter queue statistics.
	dlqStats func(ctx context.Context) map[string]interface{}
}

// NewHealthHandler creates the probe handler. Any dependency may be nil and
// is then skipped in the readiness check.
func NewHealthHandler(store Pinger, streamConnected func() bool, consumerState func() string, dlqStats func(ctx context.Context) map[string]interface{}) *HealthHandler {
	return &HealthHandler{
		store:           store,
		streamConnected: streamConnected,
		consumerState:   consumerState,
		dlqStats:        dlqStats,
	}
}

// Health reports process liveness.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

// Ready reports whether the detector can do useful work: storage reachable
// and the broker connected. Degraded scoring does not fail readiness.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]interface{}{}
	ready := true

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			ready = false
		} else {
			checks["postgres"] = "ok"
		}
	}

	if h.streamConnected != nil {
		if h.streamConnected() {
			checks["nats"] = "ok"
		} else {
			checks["nats"] = "disconnected"
			ready = false
		}
	}

	if h.consumerState != nil {
		checks["consumer"] = h.consumerState()
	}

	if h.dlqStats != nil {
		checks["dlq"] = h.dlqStats(ctx)
	}

	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "not ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}
