package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/arbiter"
	"github.com/ashureev/jailbreak-labs/internal/progress"
	"github.com/go-chi/chi/v5"
)

// OracleHealth reports the arbitration gateway's oracle state.
type OracleHealth interface {
	Health() arbiter.HealthSnapshot
}

// SyncStats reports the progress queue counters.
type SyncStats interface {
	Stats() progress.Stats
}

// HealthHandler reports dependency health.
type HealthHandler struct {
	*Handler
	oracle OracleHealth
	sync   SyncStats
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(base *Handler, oracle OracleHealth, sync SyncStats) *HealthHandler {
	return &HealthHandler{Handler: base, oracle: oracle, sync: sync}
}

// RegisterRoutes registers health routes.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.GetHealth)
}

// GetHealth returns 200 while storage is reachable and 503 otherwise. An
// unavailable oracle degrades play but does not fail the check.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	storage := "ok"
	if err := h.repo.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		storage = err.Error()
	}

	JSON(w, status, map[string]interface{}{
		"storage":        storage,
		"oracle":         h.oracle.Health(),
		"sync":           h.sync.Stats(),
		"activeSessions": h.registry.Len(),
	})
}
