package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults().Validate(): %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "backtest" },
			wantMsg: "unknown mode",
		},
		{
			name:    "sim feed needs two venues",
			mutate:  func(c *Config) { c.Feed.Venues = c.Feed.Venues[:1] },
			wantMsg: "at least 2 venues",
		},
		{
			name:    "ws feed needs url",
			mutate:  func(c *Config) { c.Feed.Source = "ws"; c.Feed.WSURL = "" },
			wantMsg: "ws_url must be set",
		},
		{
			name:    "triangular cycle length",
			mutate:  func(c *Config) { c.Scanner.TriangularCycles = [][]string{{"ETH/BTC", "BTC/USDT"}} },
			wantMsg: "exactly 3 pairs",
		},
		{
			name:    "executor agent must be registered",
			mutate:  func(c *Config) { c.Executor.AgentID = "agent-99" },
			wantMsg: "not in the agents list",
		},
		{
			name:    "duplicate agent id",
			mutate:  func(c *Config) { c.Agents = append(c.Agents, c.Agents[0]) },
			wantMsg: "duplicate id",
		},
		{
			name:    "archiver requires postgres",
			mutate:  func(c *Config) { c.S3.Enabled = true },
			wantMsg: "requires postgres",
		},
		{
			name:    "liquidation buffer range",
			mutate:  func(c *Config) { c.Leverage.LiquidationBuffer = 1.5 },
			wantMsg: "liquidation_buffer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() passed, expected rejection")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "trade"

[engine]
retention = "30m"

[scanner]
notional = 25000.0

[executor]
agent_id = "desk-1"

[[agents]]
id = "desk-1"
risk_profile = "aggressive"
total_margin = 50000.0
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "trade" {
		t.Errorf("Mode = %q, want trade", cfg.Mode)
	}
	if cfg.Engine.Retention.Duration != 30*time.Minute {
		t.Errorf("Retention = %v, want 30m", cfg.Engine.Retention.Duration)
	}
	if cfg.Scanner.Notional != 25_000 {
		t.Errorf("Notional = %v, want 25000", cfg.Scanner.Notional)
	}
	// Untouched sections keep their defaults.
	if cfg.Scanner.MinProfitUSD != 10 {
		t.Errorf("MinProfitUSD = %v, want default 10", cfg.Scanner.MinProfitUSD)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].ID != "desk-1" {
		t.Errorf("Agents = %+v, want the file's desk-1", cfg.Agents)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBENGINE_MODE", "trade")
	t.Setenv("ARBENGINE_REDIS_ENABLED", "true")
	t.Setenv("ARBENGINE_REDIS_PASSWORD", "hunter2")
	t.Setenv("ARBENGINE_POSTGRES_PORT", "6432")
	t.Setenv("ARBENGINE_ENGINE_PAIRS", "ETH/USDT, SOL/USDT")
	t.Setenv("ARBENGINE_ENGINE_RETENTION", "2h")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Mode != "trade" {
		t.Errorf("Mode = %q, want trade", cfg.Mode)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Password != "hunter2" {
		t.Errorf("Redis = %+v, want enabled with password", cfg.Redis)
	}
	if cfg.Postgres.Port != 6432 {
		t.Errorf("Postgres.Port = %d, want 6432", cfg.Postgres.Port)
	}
	if len(cfg.Engine.Pairs) != 2 || cfg.Engine.Pairs[1] != "SOL/USDT" {
		t.Errorf("Pairs = %v, want [ETH/USDT SOL/USDT]", cfg.Engine.Pairs)
	}
	if cfg.Engine.Retention.Duration != 2*time.Hour {
		t.Errorf("Retention = %v, want 2h", cfg.Engine.Retention.Duration)
	}
}

func TestEnvOverrideIgnoresMalformedValues(t *testing.T) {
	t.Setenv("ARBENGINE_POSTGRES_PORT", "not-a-port")
	t.Setenv("ARBENGINE_REDIS_ENABLED", "maybe")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Postgres.Port != 5432 {
		t.Errorf("Postgres.Port = %d, want default 5432", cfg.Postgres.Port)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled flipped by malformed value")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Password = "secret"
	cfg.Postgres.Password = "secret"
	cfg.Postgres.DSN = "postgres://u:secret@db/arb"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "secret"

	red := RedactedConfig(&cfg)
	if red.Redis.Password != "***" || red.Postgres.Password != "***" ||
		red.Postgres.DSN != "***" || red.S3.AccessKey != "***" || red.S3.SecretKey != "***" {
		t.Errorf("RedactedConfig leaked a secret: %+v", red)
	}
	// The source config is untouched.
	if cfg.Redis.Password != "secret" {
		t.Error("RedactedConfig mutated the source config")
	}
}
