package game

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/catalog"
)

// Registry owns one Controller per player.
type Registry struct {
	bank    *catalog.Bank
	arbiter Arbiter
	durable Durable
	cfg     ControllerConfig
	logger  *slog.Logger

	mu     sync.RWMutex
	active map[string]*Controller
}

// NewRegistry creates an empty registry.
func NewRegistry(bank *catalog.Bank, arb Arbiter, durable Durable, cfg ControllerConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		bank:    bank,
		arbiter: arb,
		durable: durable,
		cfg:     cfg,
		logger:  logger,
		active:  make(map[string]*Controller),
	}
}

// Get returns the controller for userID if one exists.
func (r *Registry) Get(userID string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.active[userID]
	return c, ok
}

// GetOrCreate returns the controller for userID, creating it if needed.
func (r *Registry) GetOrCreate(userID string) *Controller {
	if c, ok := r.Get(userID); ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.active[userID]; ok {
		return c
	}
	c := NewController(userID, r.bank, r.arbiter, r.durable, r.cfg, r.logger)
	r.active[userID] = c
	r.logger.Debug("controller registered", "user_id", userID)
	return c
}

// Remove discards and forgets the controller for userID.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	c, ok := r.active[userID]
	delete(r.active, userID)
	r.mu.Unlock()

	if ok {
		c.Discard()
		r.logger.Debug("controller removed", "user_id", userID)
	}
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// Sweep removes controllers idle for longer than ttl and returns how many
// were removed.
func (r *Registry) Sweep(ttl time.Duration) int {
	now := r.cfg.Now()

	r.mu.RLock()
	var idle []string
	for id, c := range r.active {
		if c.Idle(now, ttl) {
			idle = append(idle, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range idle {
		r.Remove(id)
	}
	return len(idle)
}
