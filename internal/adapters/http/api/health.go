package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/facesense/pkg/metrics"
)

const dbPingTimeout = 2 * time.Second

// HealthHandler serves liveness, dependency checks and metrics.
type HealthHandler struct {
	status StatusProvider
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(status StatusProvider) *HealthHandler {
	return &HealthHandler{status: status}
}

// HandleHealth handles GET /health.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status(r.Context())
	code := http.StatusOK
	state := "healthy"
	if !st.Started {
		code, state = http.StatusServiceUnavailable, "starting"
	}
	writeJSON(w, code, map[string]any{
		"status":    state,
		"timestamp": time.Now().UTC(),
		"model":     st.Mode,
		"employees": st.Employees,
	})
}

// HandleCamera handles GET /health/camera.
func (h *HealthHandler) HandleCamera(w http.ResponseWriter, _ *http.Request) {
	cs, managed := h.status.CameraStatus()
	if !managed {
		writeJSON(w, http.StatusOK, map[string]any{"status": "external", "managed": false})
		return
	}
	code := http.StatusOK
	if !cs.Connected {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, cs)
}

// HandleDB handles GET /health/db.
func (h *HealthHandler) HandleDB(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), dbPingTimeout)
	defer cancel()
	if err := h.status.PingDB(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "db_unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStatus handles GET /api/system/status.
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status.Status(r.Context()))
}

// MetricsHandler serves the custom Prometheus registry.
func (h *HealthHandler) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
