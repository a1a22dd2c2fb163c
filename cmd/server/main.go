// Jailbreak - word-guessing game server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/api"
	"github.com/ashureev/jailbreak-labs/internal/arbiter"
	"github.com/ashureev/jailbreak-labs/internal/catalog"
	"github.com/ashureev/jailbreak-labs/internal/config"
	"github.com/ashureev/jailbreak-labs/internal/domain"
	"github.com/ashureev/jailbreak-labs/internal/game"
	"github.com/ashureev/jailbreak-labs/internal/identity"
	"github.com/ashureev/jailbreak-labs/internal/middleware"
	"github.com/ashureev/jailbreak-labs/internal/progress"
	"github.com/ashureev/jailbreak-labs/internal/store"
	"github.com/ashureev/jailbreak-labs/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	throttlePruneInterval = 10 * time.Minute
	throttleIdle          = 30 * time.Minute
	shutdownTimeout       = 10 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func openStore(cfg *config.Config) (store.Repository, error) {
	if cfg.StoreBackend == config.BackendSupabase {
		return store.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey)
	}
	return store.NewSQLite(cfg.DBPath)
}

func openOracle(ctx context.Context, cfg *config.Config, logger *slog.Logger) arbiter.Oracle {
	if cfg.Oracle.APIKey == "" {
		slog.Info("Oracle disabled (GEMINI_API_KEY not set), using local matching only")
		return nil
	}
	oracle, err := arbiter.NewGeminiOracle(ctx, cfg.Oracle.APIKey, cfg.Oracle.Models, logger)
	if err != nil {
		slog.Warn("Failed to initialize oracle, using local matching only", "error", err)
		return nil
	}
	slog.Info("Oracle initialized", "models", cfg.Oracle.Models)
	return oracle
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.StoreBackend)

	repo, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = repo.Ping(pingCtx)
	cancel()
	if err != nil {
		return err
	}
	slog.Info("Database connected")

	gateway := arbiter.NewGateway(openOracle(ctx, cfg, logger), arbiter.GatewayConfig{
		Timeout:       cfg.Oracle.Timeout,
		Cooldown:      cfg.Oracle.Cooldown,
		MinConfidence: cfg.Oracle.MinConfidence,
	}, logger)
	defer func() {
		if closeErr := gateway.Close(); closeErr != nil {
			slog.Error("Failed to close oracle", "error", closeErr)
		}
	}()

	syncCfg := progress.DefaultConfig()
	syncCfg.QueueSize = cfg.Sync.QueueSize
	syncCfg.MaxAttempts = cfg.Sync.MaxAttempts
	syncer := progress.New(repo, syncCfg, logger)

	bank := catalog.Default()
	registry := game.NewRegistry(bank, gateway, syncer, game.ControllerConfig{
		AdvanceDelay: cfg.Game.AdvanceDelay,
	}, logger)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, registry, bank)
	throttle := api.NewThrottle(cfg.Game.SendRatePerMinute)
	gameHandler := api.NewGameHandler(baseHandler, throttle)
	boardHandler := api.NewLeaderboardHandler(baseHandler, cfg.Game.LeaderboardLimit, cfg.WebsocketOrigins())
	healthHandler := api.NewHealthHandler(baseHandler, gateway, syncer)

	syncer.OnCommit(func(domain.Completion, *domain.UserProfile) {
		boardHandler.Hub().Notify()
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	healthHandler.RegisterRoutes(r)
	gameHandler.RegisterRoutes(r)
	boardHandler.RegisterRoutes(r)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// No WriteTimeout: the leaderboard feed holds connections open.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return syncer.Run(gctx) })
	g.Go(func() error { return boardHandler.Hub().Run(gctx) })
	g.Go(func() error {
		slog.Info("Session reaper started", "session_idle_ttl", cfg.Game.SessionIdleTTL)
		return game.RunReaper(gctx, registry, game.DefaultReapInterval, cfg.Game.SessionIdleTTL)
	})
	g.Go(func() error { return throttle.Run(gctx, throttlePruneInterval, throttleIdle) })

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
			return err
		}
		return nil
	})

	return g.Wait()
}
