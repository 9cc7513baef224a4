package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	logger  *slog.Logger
	started time.Time
}

// NewHealthHandler creates a HealthHandler. Uptime is measured from the call.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		logger:  logHandler(logger, "health"),
		started: time.Now(),
	}
}

// healthResponse reports liveness plus enough identity for a fleet dashboard
// to tell wagerpool instances apart.
type healthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	AmountScale int    `json:"amount_scale"`
	Uptime      string `json:"uptime"`
	Time        string `json:"time"`
}

// HealthCheck reports that the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Service:     "wagerpool",
		AmountScale: domain.AmountScale,
		Uptime:      time.Since(h.started).Round(time.Second).String(),
		Time:        time.Now().UTC().Format(time.RFC3339),
	})
}
