package game

import (
	"context"
	"log/slog"
	"time"
)

// DefaultReapInterval is how often idle sessions are swept.
const DefaultReapInterval = 5 * time.Minute

// RunReaper periodically drops sessions idle for longer than ttl. It blocks
// until ctx is done.
func RunReaper(ctx context.Context, reg *Registry, interval, ttl time.Duration) error {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Session reaper started", "interval", interval, "ttl", ttl)

	for {
		select {
		case <-ticker.C:
			if n := reg.Sweep(ttl); n > 0 {
				slog.Info("Session reaper dropped idle sessions", "count", n, "remaining", reg.Len())
			}
		case <-ctx.Done():
			slog.Info("Session reaper shutting down", "reason", ctx.Err())
			return nil
		}
	}
}
