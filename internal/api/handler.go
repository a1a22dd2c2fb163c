// Package api provides HTTP handlers for the game API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/jailbreak-labs/internal/catalog"
	"github.com/ashureev/jailbreak-labs/internal/game"
	"github.com/ashureev/jailbreak-labs/internal/identity"
	"github.com/ashureev/jailbreak-labs/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	registry *game.Registry
	bank     *catalog.Bank
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, registry *game.Registry, bank *catalog.Bank) *Handler {
	return &Handler{
		repo:     repo,
		registry: registry,
		bank:     bank,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// userID returns the caller's identity or writes 401.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := identity.UserIDFromContext(r.Context())
	if id == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return id, true
}

// gameError maps a game operation error to an HTTP response.
func gameError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, game.ErrNoSession):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrSlotClosed),
		errors.Is(err, game.ErrBudgetExhausted),
		errors.Is(err, game.ErrStaleTurn),
		errors.Is(err, game.ErrTurnInFlight):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInvalidLevel),
		errors.Is(err, game.ErrInvalidSlot),
		errors.Is(err, game.ErrEmptyMessage),
		errors.Is(err, catalog.ErrUnknownQuestion):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Game operation failed", "error", err,
			"user_id", identity.UserIDFromContext(r.Context()), "path", r.URL.Path)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
