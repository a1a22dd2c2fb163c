package arbiter

import (
	"errors"
	"sync"
	"time"
)

// Mode is the oracle availability as seen by the gateway.
type Mode string

const (
	ModeOnline      Mode = "online"
	ModeCoolingDown Mode = "cooling_down"
	ModeDisabled    Mode = "disabled"
	ModeAbsent      Mode = "absent"
)

// HealthSnapshot is a point-in-time copy of the tracker state.
type HealthSnapshot struct {
	Mode           Mode      `json:"mode"`
	CooldownUntil  time.Time `json:"cooldownUntil,omitzero"`
	DisabledReason string    `json:"disabledReason,omitempty"`
	Calls          int64     `json:"calls"`
	Failures       int64     `json:"failures"`
	RateLimits     int64     `json:"rateLimits"`
	LastError      string    `json:"lastError,omitempty"`
}

// Health tracks oracle failures across calls. A rate limit opens a cooldown
// window; a permanent failure disables the oracle until the process exits.
type Health struct {
	mu            sync.Mutex
	now           func() time.Time
	cooldown      time.Duration
	cooldownUntil time.Time
	disabled      error
	calls         int64
	failures      int64
	rateLimits    int64
	lastErr       string
}

// NewHealth creates a tracker. A nil clock uses time.Now.
func NewHealth(cooldown time.Duration, now func() time.Time) *Health {
	if now == nil {
		now = time.Now
	}
	return &Health{now: now, cooldown: cooldown}
}

// Allow reports whether the oracle may be called now. When it may not, the
// returned error is ErrOracleDisabled or ErrRateLimited.
func (h *Health) Allow() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disabled != nil {
		return ErrOracleDisabled
	}
	if h.now().Before(h.cooldownUntil) {
		return ErrRateLimited
	}
	return nil
}

// ObserveSuccess records a call that produced a verdict.
func (h *Health) ObserveSuccess() {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
}

// ObserveFailure records a failed call and returns its classified error.
func (h *Health) ObserveFailure(err error) error {
	classified := Classify(err)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls++
	h.failures++
	h.lastErr = classified.Error()

	switch {
	case errors.Is(classified, ErrRateLimited):
		h.rateLimits++
		h.cooldownUntil = h.now().Add(h.cooldown)
	case Permanent(classified):
		if h.disabled == nil {
			h.disabled = classified
		}
	}
	return classified
}

// Snapshot returns the current tracker state.
func (h *Health) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := HealthSnapshot{
		Mode:       ModeOnline,
		Calls:      h.calls,
		Failures:   h.failures,
		RateLimits: h.rateLimits,
		LastError:  h.lastErr,
	}
	switch {
	case h.disabled != nil:
		s.Mode = ModeDisabled
		s.DisabledReason = h.disabled.Error()
	case h.now().Before(h.cooldownUntil):
		s.Mode = ModeCoolingDown
		s.CooldownUntil = h.cooldownUntil
	}
	return s
}
