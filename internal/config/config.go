// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBENGINE_* environment
// variables.
type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Feed      FeedConfig      `toml:"feed"`
	Scanner   ScannerConfig   `toml:"scanner"`
	Validator ValidatorConfig `toml:"validator"`
	Executor  ExecutorConfig  `toml:"executor"`
	Leverage  LeverageConfig  `toml:"leverage"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Agents    []AgentConfig   `toml:"agents"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// EngineConfig holds pipeline-wide parameters.
type EngineConfig struct {
	Pairs            []string `toml:"pairs"`
	Retention        duration `toml:"retention"`
	CleanupInterval  duration `toml:"cleanup_interval"`
	SnapshotInterval duration `toml:"snapshot_interval"`
}

// FeedConfig selects and configures the price feed source.
type FeedConfig struct {
	// Source is "sim" or "ws".
	Source string `toml:"source"`

	// WSURL is the websocket endpoint for the "ws" source.
	WSURL string `toml:"ws_url"`

	// Sim parameters, used by the "sim" source.
	StartPrices map[string]float64 `toml:"start_prices"`
	Venues      []VenueConfig      `toml:"venues"`
	TickRate    duration           `toml:"tick_rate"`
	StepPct     float64            `toml:"step_pct"`
	JitterPct   float64            `toml:"jitter_pct"`
	Volume24h   float64            `toml:"volume_24h"`
	Seed        int64              `toml:"seed"`
}

// VenueConfig describes one simulated venue.
type VenueConfig struct {
	Name      string  `toml:"name"`
	Chain     string  `toml:"chain"`
	BiasPct   float64 `toml:"bias_pct"`
	Liquidity float64 `toml:"liquidity"`
}

// ScannerConfig holds detector thresholds and cadences.
type ScannerConfig struct {
	Notional             float64 `toml:"notional"`
	MinProfitUSD         float64 `toml:"min_profit_usd"`
	MaxSlippageTolerance float64 `toml:"max_slippage_tolerance"`

	BaseGasUnits     float64 `toml:"base_gas_units"`
	SwapGasUnits     float64 `toml:"swap_gas_units"`
	GasTokenPriceUSD float64 `toml:"gas_token_price_usd"`

	HighCongestionCutoff   float64  `toml:"high_congestion_cutoff"`
	SpreadThresholdHighPct float64  `toml:"spread_threshold_high_pct"`
	SpreadThresholdLowPct  float64  `toml:"spread_threshold_low_pct"`
	SimpleInterval         duration `toml:"simple_interval"`
	SimpleValidity         duration `toml:"simple_validity"`

	// TriangularCycles lists pair triples, e.g. [["ETH/BTC","BTC/USDT","USDT/ETH"]].
	TriangularCycles       [][]string `toml:"triangular_cycles"`
	TriangularMinProfitPct float64    `toml:"triangular_min_profit_pct"`
	TriangularInterval     duration   `toml:"triangular_interval"`
	TriangularValidity     duration   `toml:"triangular_validity"`

	CrossChainRoutes       []RouteConfig `toml:"cross_chain_routes"`
	BridgeCostUSD          float64       `toml:"bridge_cost_usd"`
	CrossChainMinSpreadPct float64       `toml:"cross_chain_min_spread_pct"`
	CrossChainInterval     duration      `toml:"cross_chain_interval"`
	CrossChainValidity     duration      `toml:"cross_chain_validity"`
}

// RouteConfig describes a cross-chain route to watch.
type RouteConfig struct {
	Pair   string `toml:"pair"`
	ChainA string `toml:"chain_a"`
	ChainB string `toml:"chain_b"`
}

// ValidatorConfig holds re-validation gates.
type ValidatorConfig struct {
	Interval          duration `toml:"interval"`
	MinLiquidityScore float64  `toml:"min_liquidity_score"`
	MaxCongestion     float64  `toml:"max_congestion"`
	MaxGasProfitRatio float64  `toml:"max_gas_profit_ratio"`
	MaxDetectionAge   duration `toml:"max_detection_age"`
	MinConfidence     float64  `toml:"min_confidence"`
}

// ExecutorConfig holds execution parameters.
type ExecutorConfig struct {
	SlippageCap  float64  `toml:"slippage_cap"`
	AgentID      string   `toml:"agent_id"`
	PerLegGasUSD float64  `toml:"per_leg_gas_usd"`
	LegDelay     duration `toml:"leg_delay"`
}

// LeverageConfig holds the leverage model parameters.
type LeverageConfig struct {
	MinLeverage       float64 `toml:"min_leverage"`
	MaxLeverage       float64 `toml:"max_leverage"`
	BaseConservative  float64 `toml:"base_conservative"`
	BaseModerate      float64 `toml:"base_moderate"`
	BaseAggressive    float64 `toml:"base_aggressive"`
	VolatilityWeight  float64 `toml:"volatility_weight"`
	VolatilityFloor   float64 `toml:"volatility_floor"`
	BullishMultiplier float64 `toml:"bullish_multiplier"`
	BearishMultiplier float64 `toml:"bearish_multiplier"`
	LiquidationBuffer float64 `toml:"liquidation_buffer"`
	VaRFactor         float64 `toml:"var_factor"`
}

// MonitorConfig holds margin monitor parameters.
type MonitorConfig struct {
	Interval         duration `toml:"interval"`
	DeleverThreshold float64  `toml:"delever_threshold"`
}

// RedisConfig holds Redis connection parameters. When disabled the engine
// runs without the price mirror and signal bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters. When disabled
// positions and executions are held in memory only.
type PostgresConfig struct {
	Enabled      bool   `toml:"enabled"`
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
	RunSchema    bool   `toml:"run_schema"`
}

// S3Config holds S3-compatible object storage parameters for the execution
// archiver.
type S3Config struct {
	Enabled          bool     `toml:"enabled"`
	Endpoint         string   `toml:"endpoint"`
	Region           string   `toml:"region"`
	Bucket           string   `toml:"bucket"`
	AccessKey        string   `toml:"access_key"`
	SecretKey        string   `toml:"secret_key"`
	UseSSL           bool     `toml:"use_ssl"`
	ForcePathStyle   bool     `toml:"force_path_style"`
	ArchiveInterval  duration `toml:"archive_interval"`
	ArchiveRetention duration `toml:"archive_retention"`
}

// MetricsConfig holds the Prometheus exposition listener settings.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// AgentConfig describes one trading agent known to the engine.
type AgentConfig struct {
	ID          string  `toml:"id"`
	RiskProfile string  `toml:"risk_profile"`
	TotalMargin float64 `toml:"total_margin"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "50ms".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. The
// sim feed, a single moderate agent, and the Prometheus listener are on by
// default; Redis, Postgres, and S3 are opt-in.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Pairs:            []string{"ETH/USDT", "BTC/USDT", "ETH/BTC"},
			Retention:        duration{time.Hour},
			CleanupInterval:  duration{time.Minute},
			SnapshotInterval: duration{30 * time.Second},
		},
		Feed: FeedConfig{
			Source: "sim",
			StartPrices: map[string]float64{
				"ETH/USDT": 2_000,
				"BTC/USDT": 40_000,
				"ETH/BTC":  0.05,
			},
			Venues: []VenueConfig{
				{Name: "uniswap", Chain: "ethereum", BiasPct: 0.0, Liquidity: 0.9},
				{Name: "sushiswap", Chain: "ethereum", BiasPct: 0.05, Liquidity: 0.6},
				{Name: "quickswap", Chain: "polygon", BiasPct: -0.08, Liquidity: 0.5},
				{Name: "traderjoe", Chain: "avalanche", BiasPct: 0.12, Liquidity: 0.4},
			},
			TickRate:  duration{100 * time.Millisecond},
			StepPct:   0.05,
			JitterPct: 0.1,
			Volume24h: 5_000_000,
		},
		Scanner: ScannerConfig{
			Notional:               10_000,
			MinProfitUSD:           10,
			MaxSlippageTolerance:   0.002,
			BaseGasUnits:           21_000,
			SwapGasUnits:           120_000,
			GasTokenPriceUSD:       2_000,
			HighCongestionCutoff:   0.7,
			SpreadThresholdHighPct: 0.5,
			SpreadThresholdLowPct:  0.2,
			SimpleInterval:         duration{50 * time.Millisecond},
			SimpleValidity:         duration{5 * time.Minute},
			TriangularCycles: [][]string{
				{"ETH/BTC", "BTC/USDT", "USDT/ETH"},
			},
			TriangularMinProfitPct: 0.1,
			TriangularInterval:     duration{100 * time.Millisecond},
			TriangularValidity:     duration{3 * time.Minute},
			CrossChainRoutes: []RouteConfig{
				{Pair: "ETH/USDT", ChainA: "ethereum", ChainB: "polygon"},
			},
			BridgeCostUSD:          25,
			CrossChainMinSpreadPct: 0.3,
			CrossChainInterval:     duration{200 * time.Millisecond},
			CrossChainValidity:     duration{15 * time.Minute},
		},
		Validator: ValidatorConfig{
			Interval:          duration{100 * time.Millisecond},
			MinLiquidityScore: 0.3,
			MaxCongestion:     0.8,
			MaxGasProfitRatio: 0.5,
			MaxDetectionAge:   duration{5 * time.Second},
			MinConfidence:     0.7,
		},
		Executor: ExecutorConfig{
			SlippageCap:  0.002,
			AgentID:      "agent-1",
			PerLegGasUSD: 4,
			LegDelay:     duration{50 * time.Millisecond},
		},
		Leverage: LeverageConfig{
			MinLeverage:       1.0,
			MaxLeverage:       20.0,
			BaseConservative:  3,
			BaseModerate:      10,
			BaseAggressive:    20,
			VolatilityWeight:  20,
			VolatilityFloor:   0.3,
			BullishMultiplier: 1.2,
			BearishMultiplier: 0.7,
			LiquidationBuffer: 0.05,
			VaRFactor:         0.05,
		},
		Monitor: MonitorConfig{
			Interval:         duration{time.Second},
			DeleverThreshold: 0.85,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "arbengine",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
			RunSchema:    true,
		},
		S3: S3Config{
			Enabled:          false,
			Endpoint:         "http://localhost:9000",
			Region:           "us-east-1",
			Bucket:           "arbengine-data",
			ForcePathStyle:   true,
			ArchiveInterval:  duration{time.Hour},
			ArchiveRetention: duration{24 * time.Hour},
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9102",
		},
		Agents: []AgentConfig{
			{ID: "agent-1", RiskProfile: "moderate", TotalMargin: 100_000},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode. "scan" detects
// and validates without executing; "trade" hands validated opportunities to
// the executor.
var validModes = map[string]bool{
	"scan":  true,
	"trade": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validRiskProfiles enumerates the accepted agent risk profiles.
var validRiskProfiles = map[string]bool{
	"conservative": true,
	"moderate":     true,
	"aggressive":   true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, trade)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if len(c.Engine.Pairs) == 0 {
		errs = append(errs, "engine: pairs must not be empty")
	}
	if c.Engine.Retention.Duration <= 0 {
		errs = append(errs, "engine: retention must be positive")
	}

	// Feed
	switch c.Feed.Source {
	case "sim":
		if len(c.Feed.Venues) < 2 {
			errs = append(errs, "feed: sim source needs at least 2 venues")
		}
		if len(c.Feed.StartPrices) == 0 {
			errs = append(errs, "feed: start_prices must not be empty for sim source")
		}
	case "ws":
		if c.Feed.WSURL == "" {
			errs = append(errs, "feed: ws_url must be set for ws source")
		}
	default:
		errs = append(errs, fmt.Sprintf("feed: unknown source %q (valid: sim, ws)", c.Feed.Source))
	}

	// Scanner
	if c.Scanner.Notional <= 0 {
		errs = append(errs, "scanner: notional must be > 0")
	}
	if c.Scanner.MaxSlippageTolerance < 0 || c.Scanner.MaxSlippageTolerance > 1 {
		errs = append(errs, "scanner: max_slippage_tolerance must be in [0, 1]")
	}
	for i, cycle := range c.Scanner.TriangularCycles {
		if len(cycle) != 3 {
			errs = append(errs, fmt.Sprintf("scanner: triangular_cycles[%d] must list exactly 3 pairs, got %d", i, len(cycle)))
		}
	}
	for i, route := range c.Scanner.CrossChainRoutes {
		if route.Pair == "" || route.ChainA == "" || route.ChainB == "" {
			errs = append(errs, fmt.Sprintf("scanner: cross_chain_routes[%d] must set pair, chain_a, and chain_b", i))
		}
	}

	// Validator
	if c.Validator.MinConfidence < 0 || c.Validator.MinConfidence > 1 {
		errs = append(errs, "validator: min_confidence must be in [0, 1]")
	}
	if c.Validator.MaxCongestion < 0 || c.Validator.MaxCongestion > 1 {
		errs = append(errs, "validator: max_congestion must be in [0, 1]")
	}

	// Executor
	if c.Executor.AgentID == "" {
		errs = append(errs, "executor: agent_id must not be empty")
	}

	// Leverage
	if c.Leverage.MinLeverage < 1 {
		errs = append(errs, "leverage: min_leverage must be >= 1")
	}
	if c.Leverage.MaxLeverage < c.Leverage.MinLeverage {
		errs = append(errs, "leverage: max_leverage must be >= min_leverage")
	}
	if c.Leverage.LiquidationBuffer < 0 || c.Leverage.LiquidationBuffer >= 1 {
		errs = append(errs, "leverage: liquidation_buffer must be in [0, 1)")
	}

	// Monitor
	if c.Monitor.DeleverThreshold <= 0 || c.Monitor.DeleverThreshold > 1 {
		errs = append(errs, "monitor: delever_threshold must be in (0, 1]")
	}

	// Agents
	if len(c.Agents) == 0 {
		errs = append(errs, "agents: at least one agent must be configured")
	}
	seen := make(map[string]bool, len(c.Agents))
	executorKnown := false
	for i, a := range c.Agents {
		if a.ID == "" {
			errs = append(errs, fmt.Sprintf("agents[%d]: id must not be empty", i))
			continue
		}
		if seen[a.ID] {
			errs = append(errs, fmt.Sprintf("agents[%d]: duplicate id %q", i, a.ID))
		}
		seen[a.ID] = true
		if !validRiskProfiles[strings.ToLower(a.RiskProfile)] {
			errs = append(errs, fmt.Sprintf("agents[%d]: unknown risk_profile %q (valid: conservative, moderate, aggressive)", i, a.RiskProfile))
		}
		if a.TotalMargin <= 0 {
			errs = append(errs, fmt.Sprintf("agents[%d]: total_margin must be > 0", i))
		}
		if a.ID == c.Executor.AgentID {
			executorKnown = true
		}
	}
	if c.Executor.AgentID != "" && !executorKnown {
		errs = append(errs, fmt.Sprintf("executor: agent_id %q is not in the agents list", c.Executor.AgentID))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: the archiver requires postgres to be enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errs = append(errs, "metrics: listen_addr must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
