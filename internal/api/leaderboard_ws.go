package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const wsWriteTimeout = 5 * time.Second

// SnapshotFunc produces the leaderboard pushed to subscribers.
type SnapshotFunc func(ctx context.Context) (Leaderboard, error)

// Hub fans leaderboard snapshots out to websocket subscribers. Notify
// requests coalesce, so a burst of completions triggers one rebuild.
type Hub struct {
	snapshot SnapshotFunc
	origins  []string
	logger   *slog.Logger
	notify   chan struct{}

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates a hub. Call Run to start broadcasting.
func NewHub(snapshot SnapshotFunc, origins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		snapshot: snapshot,
		origins:  origins,
		logger:   logger,
		notify:   make(chan struct{}, 1),
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

// Notify schedules a broadcast. It never blocks.
func (h *Hub) Notify() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Run broadcasts a fresh snapshot after every Notify until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-h.notify:
			if h.Len() == 0 {
				continue
			}
			lb, err := h.snapshot(ctx)
			if err != nil {
				h.logger.Warn("Failed to build leaderboard for broadcast", "error", err)
				continue
			}
			h.broadcast(ctx, lb)
		case <-ctx.Done():
			h.closeAll()
			return nil
		}
	}
}

// ServeHTTP upgrades the request, sends the current leaderboard and keeps
// the subscriber registered until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn("Failed to accept leaderboard websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "feed closed"); closeErr != nil {
			h.logger.Debug("Failed to close leaderboard websocket", "error", closeErr)
		}
	}()

	// Subscribers never send; CloseRead handles control frames for us.
	ctx := conn.CloseRead(r.Context())

	if lb, err := h.snapshot(ctx); err != nil {
		h.logger.Warn("Failed to build initial leaderboard", "error", err)
	} else if err := h.write(ctx, conn, lb); err != nil {
		return
	}

	h.register(conn)
	defer h.unregister(conn)

	<-ctx.Done()
}

func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.logger.Debug("Leaderboard subscriber registered", "subscribers", n)
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	n := len(h.conns)
	h.mu.Unlock()
	h.logger.Debug("Leaderboard subscriber unregistered", "subscribers", n)
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, lb Leaderboard) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, lb); err != nil {
		h.logger.Debug("Leaderboard websocket write failed", "error", err)
		return err
	}
	return nil
}

func (h *Hub) broadcast(ctx context.Context, lb Leaderboard) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.write(ctx, c, lb); err != nil {
				h.unregister(c)
				_ = c.Close(websocket.StatusGoingAway, "write failed")
			}
		}()
	}
	wg.Wait()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
