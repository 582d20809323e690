package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/galactic-archives/internal/auth"
)

const (
	ServiceName = "Galactic Archives API"
	healthPing  = 2 * time.Second
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store   Pinger
	version string
	logger  *slog.Logger
}

func NewHealthHandler(p Pinger, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: p, version: version, logger: logger}
}

// Health always answers 200; the body reports store reachability.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPing)
	defer cancel()

	status, database := "healthy", "connected"
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health ping failed", "error", err)
		status, database = "unhealthy", "disconnected"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"database": database,
		"service":  ServiceName,
		"version":  h.version,
	})
}

// Info describes the API. Callers presenting a valid token are told so.
func (h *HealthHandler) Info(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       ServiceName + " v1",
		"version":       h.version,
		"authenticated": id.Authenticated(),
		"endpoints": map[string]string{
			"health":  "/healthz",
			"auth":    "/api/v1/auth/*",
			"notes":   "/api/v1/notes/*",
			"billing": "/api/v1/billing/*",
		},
	})
}
