package handler

import (
	"context"
	"net/http"

	"autoleads/internal/service"
)

// HealthChecker reports dependency health
type HealthChecker interface {
	CheckHealth(ctx context.Context) *service.HealthStatus
}

// HealthHandler handles health check requests
type HealthHandler struct {
	health HealthChecker
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(health HealthChecker) *HealthHandler {
	return &HealthHandler{health: health}
}

// HandleHealth handles GET /health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.health.CheckHealth(r.Context())

	code := http.StatusOK
	switch status.Status {
	case service.StatusHealthy:
	case service.StatusDegraded, service.StatusUnhealthy:
		code = http.StatusServiceUnavailable
	default:
		code = http.StatusInternalServerError
	}

	WriteJSON(w, code, status)
}
