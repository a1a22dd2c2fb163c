package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/identity"
	"golang.org/x/time/rate"
)

// Throttle limits chat sends per player with a token bucket each.
type Throttle struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*throttleEntry
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewThrottle allows perMinute sends per player, with short bursts of a
// quarter of that.
func NewThrottle(perMinute int) *Throttle {
	perMinute = max(1, perMinute)
	return &Throttle{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    max(1, perMinute/4),
		now:      time.Now,
		limiters: make(map[string]*throttleEntry),
	}
}

// Allow reports whether userID may send now, consuming a token if so.
func (t *Throttle) Allow(userID string) bool {
	now := t.now()

	t.mu.Lock()
	e, ok := t.limiters[userID]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[userID] = e
	}
	e.lastSeen = now
	t.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the caller's budget with 429.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := identity.UserIDFromContext(r.Context())
		if !t.Allow(userID) {
			retry := time.Duration(float64(time.Second) / float64(t.limit))
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(retry.Seconds()))))
			slog.Warn("Send throttled", "user_id", userID)
			Error(w, http.StatusTooManyRequests, "too many messages, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Prune forgets limiters unused for longer than idle.
func (t *Throttle) Prune(idle time.Duration) int {
	cutoff := t.now().Add(-idle)

	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, e := range t.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(t.limiters, id)
			n++
		}
	}
	return n
}

// Run prunes idle limiters every interval until ctx is done.
func (t *Throttle) Run(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := t.Prune(idle); n > 0 {
				slog.Debug("Pruned idle send limiters", "count", n)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
