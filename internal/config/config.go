// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendSupabase = "supabase"
)

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT"         envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	DBPath       string `env:"DB_PATH"       envDefault:"./data/jailbreak.db"`
	SupabaseURL  string `env:"SUPABASE_URL"`
	SupabaseKey  string `env:"SUPABASE_KEY"`

	Oracle OracleConfig
	Game   GameConfig
	Sync   SyncConfig
}

// OracleConfig controls the language-model oracle.
type OracleConfig struct {
	// APIKey empty disables the oracle; play continues on local fallback.
	APIKey        string        `env:"GEMINI_API_KEY"`
	Models        []string      `env:"GEMINI_MODELS"         envDefault:"gemini-flash-latest,gemini-2.0-flash,gemini-2.0-flash-lite,gemini-1.5-flash,gemini-pro" envSeparator:","`
	Timeout       time.Duration `env:"ORACLE_TIMEOUT"        envDefault:"20s"`
	Cooldown      time.Duration `env:"ORACLE_COOLDOWN"       envDefault:"30s"`
	MinConfidence float64       `env:"ORACLE_MIN_CONFIDENCE" envDefault:"0.7"`
}

// GameConfig controls live sessions.
type GameConfig struct {
	SendRatePerMinute int           `env:"SEND_RATE_PER_MINUTE"     envDefault:"20"`
	SessionIdleTTL    time.Duration `env:"SESSION_IDLE_TTL"         envDefault:"60m"`
	AdvanceDelay      time.Duration `env:"EXHAUSTION_ADVANCE_DELAY" envDefault:"2s"`

	// LeaderboardLimit caps listed players; 0 lists everyone.
	LeaderboardLimit int `env:"LEADERBOARD_LIMIT" envDefault:"100"`
}

// SyncConfig controls the progress write queue.
type SyncConfig struct {
	QueueSize   int `env:"SYNC_QUEUE_SIZE"   envDefault:"256"`
	MaxAttempts int `env:"SYNC_MAX_ATTEMPTS" envDefault:"5"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreBackend {
	case BackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY are required for the supabase backend")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendSQLite, BackendSupabase, c.StoreBackend)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Oracle.APIKey != "" && len(c.Oracle.Models) == 0 {
		return fmt.Errorf("GEMINI_MODELS cannot be empty when GEMINI_API_KEY is set")
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("ORACLE_TIMEOUT must be > 0")
	}
	if c.Oracle.MinConfidence < 0 || c.Oracle.MinConfidence > 1 {
		return fmt.Errorf("ORACLE_MIN_CONFIDENCE must be within [0, 1]")
	}
	if c.Game.SendRatePerMinute <= 0 {
		return fmt.Errorf("SEND_RATE_PER_MINUTE must be > 0")
	}
	if c.Game.SessionIdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be > 0")
	}
	if c.Game.AdvanceDelay < 0 {
		return fmt.Errorf("EXHAUSTION_ADVANCE_DELAY cannot be negative")
	}
	if c.Game.LeaderboardLimit < 0 {
		return fmt.Errorf("LEADERBOARD_LIMIT cannot be negative")
	}
	if c.Sync.QueueSize <= 0 {
		return fmt.Errorf("SYNC_QUEUE_SIZE must be > 0")
	}
	if c.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		origins := []string{"http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:5173"}
		if c.FrontendURL != "" {
			origins = append(origins, c.FrontendURL)
		}
		return origins
	}
	return []string{c.FrontendURL}
}

// WebsocketOrigins returns AllowedOrigins reduced to host patterns, the form
// websocket origin checks match against.
func (c *Config) WebsocketOrigins() []string {
	origins := c.AllowedOrigins()
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}
