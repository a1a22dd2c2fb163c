package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_BACKEND", "DB_PATH", "GEMINI_API_KEY", "GEMINI_MODELS", "ORACLE_TIMEOUT", "EXHAUSTION_ADVANCE_DELAY", "LOG_LEVEL", "LEADERBOARD_LIMIT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8080" || cfg.StoreBackend != BackendSQLite || cfg.DBPath != "./data/jailbreak.db" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Oracle.Timeout != 20*time.Second || cfg.Oracle.Cooldown != 30*time.Second {
		t.Errorf("oracle durations = (%v, %v), want (20s, 30s)", cfg.Oracle.Timeout, cfg.Oracle.Cooldown)
	}
	if cfg.Oracle.MinConfidence != 0.7 {
		t.Errorf("MinConfidence = %v, want 0.7", cfg.Oracle.MinConfidence)
	}
	if len(cfg.Oracle.Models) != 5 || cfg.Oracle.Models[0] != "gemini-flash-latest" {
		t.Errorf("Models = %v", cfg.Oracle.Models)
	}
	if cfg.Game.AdvanceDelay != 2*time.Second || cfg.Game.SessionIdleTTL != time.Hour {
		t.Errorf("game = %+v", cfg.Game)
	}
	if cfg.Game.LeaderboardLimit != 100 || cfg.LogLevel != "info" {
		t.Errorf("LeaderboardLimit = %d, LogLevel = %q", cfg.Game.LeaderboardLimit, cfg.LogLevel)
	}
	if cfg.Sync.QueueSize != 256 || cfg.Sync.MaxAttempts != 5 {
		t.Errorf("sync = %+v", cfg.Sync)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "Supabase")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_KEY", "service-key")
	t.Setenv("GEMINI_MODELS", "gemini-2.0-flash,gemini-pro")
	t.Setenv("SEND_RATE_PER_MINUTE", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "9090" || cfg.StoreBackend != BackendSupabase {
		t.Errorf("cfg = %+v", cfg)
	}
	if strings.Join(cfg.Oracle.Models, "|") != "gemini-2.0-flash|gemini-pro" {
		t.Errorf("Models = %v", cfg.Oracle.Models)
	}
	if cfg.Game.SendRatePerMinute != 5 {
		t.Errorf("SendRatePerMinute = %d, want 5", cfg.Game.SendRatePerMinute)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{
			Port:         "8080",
			LogLevel:     "info",
			StoreBackend: BackendSQLite,
			DBPath:       "./data/jailbreak.db",
			Oracle:       OracleConfig{Timeout: time.Second, MinConfidence: 0.7},
			Game:         GameConfig{SendRatePerMinute: 20, SessionIdleTTL: time.Hour},
			Sync:         SyncConfig{QueueSize: 1, MaxAttempts: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "valid", mutate: func(*Config) {}, ok: true},
		{name: "empty port", mutate: func(c *Config) { c.Port = "" }},
		{name: "debug level", mutate: func(c *Config) { c.LogLevel = "DEBUG" }, ok: true},
		{name: "unknown level", mutate: func(c *Config) { c.LogLevel = "verbose" }},
		{name: "unknown backend", mutate: func(c *Config) { c.StoreBackend = "mongo" }},
		{name: "supabase without key", mutate: func(c *Config) { c.StoreBackend = BackendSupabase; c.SupabaseURL = "https://x" }},
		{name: "api key without models", mutate: func(c *Config) { c.Oracle.APIKey = "k" }},
		{name: "confidence above one", mutate: func(c *Config) { c.Oracle.MinConfidence = 1.5 }},
		{name: "zero send rate", mutate: func(c *Config) { c.Game.SendRatePerMinute = 0 }},
		{name: "negative advance delay", mutate: func(c *Config) { c.Game.AdvanceDelay = -time.Second }},
		{name: "negative leaderboard limit", mutate: func(c *Config) { c.Game.LeaderboardLimit = -1 }},
		{name: "zero queue", mutate: func(c *Config) { c.Sync.QueueSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"":                          true,
		"http://localhost:5173":     true,
		"http://127.0.0.1:3000":     true,
		"https://jailbreak.example": false,
	}
	for url, want := range tests {
		c := &Config{FrontendURL: url}
		if got := c.IsDevelopment(); got != want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", url, got, want)
		}
	}
}

func TestWebsocketOrigins(t *testing.T) {
	t.Parallel()

	prod := &Config{FrontendURL: "https://jailbreak.example"}
	if got := prod.WebsocketOrigins(); len(got) != 1 || got[0] != "jailbreak.example" {
		t.Errorf("WebsocketOrigins() = %v, want [jailbreak.example]", got)
	}

	dev := &Config{}
	got := dev.WebsocketOrigins()
	if len(got) != 3 || got[0] != "localhost:5173" {
		t.Errorf("dev WebsocketOrigins() = %v", got)
	}
}
