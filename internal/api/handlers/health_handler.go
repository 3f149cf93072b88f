package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// HealthHandler reports process and backend health
type HealthHandler struct {
	checks      map[string]HealthCheck
	persistence PersistenceStatus
}

// NewHealthHandler creates a health handler. checks may be empty.
func NewHealthHandler(checks map[string]HealthCheck, persistence PersistenceStatus) *HealthHandler {
	return &HealthHandler{checks: checks, persistence: persistence}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	body := map[string]interface{}{
		"status": "ok",
		"checks": results,
	}
	if status != http.StatusOK {
		body["status"] = "unavailable"
	}
	if h.persistence != nil && h.persistence.Degraded() {
		body["persistence_degraded"] = true
	}
	respondWithJSON(w, status, body)
}
