// Package app provides the top-level application lifecycle for the arbitrage
// engine. It wires infrastructure, assembles the pipeline, and runs it until
// the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/arbstack/arbengine/internal/agent"
	"github.com/arbstack/arbengine/internal/config"
	"github.com/arbstack/arbengine/internal/domain"
	"github.com/arbstack/arbengine/internal/engine"
	"github.com/arbstack/arbengine/internal/executor"
	"github.com/arbstack/arbengine/internal/feed"
	"github.com/arbstack/arbengine/internal/funding"
	"github.com/arbstack/arbengine/internal/leverage"
	"github.com/arbstack/arbengine/internal/metrics"
	"github.com/arbstack/arbengine/internal/oracle"
	"github.com/arbstack/arbengine/internal/pricebook"
	"github.com/arbstack/arbengine/internal/scanner"
	"github.com/arbstack/arbengine/internal/validator"
)

// App is the root application object. It owns the configuration and logger
// and supervises the engine plus the sidecar loops (metrics listener,
// archiver).
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, assembles the pipeline, and blocks until the
// context is cancelled. On return it releases all infrastructure
// connections.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	defer cleanup()

	eng := a.assemble(deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })

	if a.cfg.Metrics.Enabled {
		g.Go(func() error { return a.serveMetrics(ctx) })
	}
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx,
				a.cfg.S3.ArchiveInterval.Duration,
				a.cfg.S3.ArchiveRetention.Duration)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// assemble builds the full pipeline from configuration and wired
// infrastructure. Nil infrastructure fields leave the engine in-memory only.
func (a *App) assemble(deps *Dependencies) *engine.Engine {
	book := pricebook.New()
	table := engine.NewOpportunityTable()
	tracker := metrics.NewTracker()

	gas := oracle.NewSimGasEstimator(30, 20)
	congestion := oracle.NewSimCongestionOracle()
	liquidity := oracle.NewStaticLiquidityOracle(venueLiquidity(a.cfg.Feed.Venues), 0.5)

	scanCfg := scannerConfig(a.cfg.Scanner)
	detectors := []scanner.Detector{
		scanner.NewSimple(book, gas, congestion, liquidity, tracker, scanCfg, a.logger),
	}
	if len(scanCfg.TriangularCycles) > 0 {
		detectors = append(detectors, scanner.NewTriangular(book, gas, liquidity, scanCfg, a.logger))
	}
	if len(scanCfg.CrossChainRoutes) > 0 {
		detectors = append(detectors, scanner.NewCrossChain(book, gas, liquidity, scanCfg, a.logger))
	}

	fund := funding.NewSimService(deps.Bus, a.logger)
	coord := executor.NewCoordinator(table, executor.SimLegExecutor{
		PerLegGasUSD: a.cfg.Executor.PerLegGasUSD,
		LegDelay:     a.cfg.Executor.LegDelay.Duration,
	}, fund, deps.ExecutionStore, deps.Bus, tracker, executor.Config{
		MaxSlippageTolerance: a.cfg.Scanner.MaxSlippageTolerance,
		SlippageCap:          a.cfg.Executor.SlippageCap,
		AgentID:              a.cfg.Executor.AgentID,
	}, a.logger)

	valCfg := validator.Config{
		Interval:          a.cfg.Validator.Interval.Duration,
		MinLiquidityScore: a.cfg.Validator.MinLiquidityScore,
		MaxCongestion:     a.cfg.Validator.MaxCongestion,
		MaxGasProfitRatio: a.cfg.Validator.MaxGasProfitRatio,
		MaxDetectionAge:   a.cfg.Validator.MaxDetectionAge.Duration,
		MinConfidence:     a.cfg.Validator.MinConfidence,
		AutoExecute:       strings.ToLower(a.cfg.Mode) == "trade",
	}
	val := validator.New(table, coord, congestion, valCfg, a.logger)

	registry := agent.NewStaticRegistry(agentList(a.cfg.Agents))
	manager := leverage.NewManager(registry, deps.PositionStore, leverageConfig(a.cfg.Leverage), a.logger)
	monitor := leverage.NewMonitor(manager, registry, leverage.MonitorConfig{
		Interval:         a.cfg.Monitor.Interval.Duration,
		DeleverThreshold: a.cfg.Monitor.DeleverThreshold,
	}, a.logger)

	return engine.New(
		book, table, detectors, val, coord, manager, monitor, tracker,
		a.buildFeed(), deps.Mirror, deps.Bus,
		engine.Config{
			Pairs:            a.cfg.Engine.Pairs,
			Retention:        a.cfg.Engine.Retention.Duration,
			CleanupInterval:  a.cfg.Engine.CleanupInterval.Duration,
			SnapshotInterval: a.cfg.Engine.SnapshotInterval.Duration,
		},
		a.logger,
	)
}

// buildFeed selects the price feed implementation from configuration.
func (a *App) buildFeed() domain.PriceFeed {
	if strings.ToLower(a.cfg.Feed.Source) == "ws" {
		return feed.NewWSFeed(a.cfg.Feed.WSURL, a.logger)
	}

	venues := make([]feed.SimVenue, 0, len(a.cfg.Feed.Venues))
	for _, v := range a.cfg.Feed.Venues {
		venues = append(venues, feed.SimVenue{
			Name:      v.Name,
			Chain:     v.Chain,
			BiasPct:   v.BiasPct,
			Liquidity: v.Liquidity,
		})
	}
	return feed.NewSimFeed(feed.SimConfig{
		Pairs:     a.cfg.Feed.StartPrices,
		Venues:    venues,
		Interval:  a.cfg.Feed.TickRate.Duration,
		StepPct:   a.cfg.Feed.StepPct,
		JitterPct: a.cfg.Feed.JitterPct,
		Volume24h: a.cfg.Feed.Volume24h,
		Seed:      a.cfg.Feed.Seed,
	}, a.logger)
}

// serveMetrics exposes the Prometheus registry until the context ends.
func (a *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              a.cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	a.logger.Info("metrics listener started", slog.String("addr", a.cfg.Metrics.ListenAddr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: metrics listener: %w", err)
	}
}

// scannerConfig translates the TOML scanner section into detector parameters.
func scannerConfig(c config.ScannerConfig) scanner.Config {
	cycles := make([][3]string, 0, len(c.TriangularCycles))
	for _, cycle := range c.TriangularCycles {
		if len(cycle) != 3 {
			continue
		}
		cycles = append(cycles, [3]string{cycle[0], cycle[1], cycle[2]})
	}
	routes := make([]scanner.CrossChainRoute, 0, len(c.CrossChainRoutes))
	for _, r := range c.CrossChainRoutes {
		routes = append(routes, scanner.CrossChainRoute{
			Pair:   r.Pair,
			ChainA: r.ChainA,
			ChainB: r.ChainB,
		})
	}

	return scanner.Config{
		Notional:               c.Notional,
		MinProfitUSD:           c.MinProfitUSD,
		MaxSlippageTolerance:   c.MaxSlippageTolerance,
		BaseGasUnits:           c.BaseGasUnits,
		SwapGasUnits:           c.SwapGasUnits,
		GasTokenPriceUSD:       c.GasTokenPriceUSD,
		HighCongestionCutoff:   c.HighCongestionCutoff,
		SpreadThresholdHighPct: c.SpreadThresholdHighPct,
		SpreadThresholdLowPct:  c.SpreadThresholdLowPct,
		SimpleInterval:         c.SimpleInterval.Duration,
		SimpleValidity:         c.SimpleValidity.Duration,
		TriangularCycles:       cycles,
		TriangularMinProfitPct: c.TriangularMinProfitPct,
		TriangularInterval:     c.TriangularInterval.Duration,
		TriangularValidity:     c.TriangularValidity.Duration,
		CrossChainRoutes:       routes,
		BridgeCostUSD:          c.BridgeCostUSD,
		CrossChainMinSpreadPct: c.CrossChainMinSpreadPct,
		CrossChainInterval:     c.CrossChainInterval.Duration,
		CrossChainValidity:     c.CrossChainValidity.Duration,
	}
}

// leverageConfig translates the TOML leverage section into model parameters.
func leverageConfig(c config.LeverageConfig) leverage.Config {
	return leverage.Config{
		MinLeverage:       c.MinLeverage,
		MaxLeverage:       c.MaxLeverage,
		BaseConservative:  c.BaseConservative,
		BaseModerate:      c.BaseModerate,
		BaseAggressive:    c.BaseAggressive,
		VolatilityWeight:  c.VolatilityWeight,
		VolatilityFloor:   c.VolatilityFloor,
		BullishMultiplier: c.BullishMultiplier,
		BearishMultiplier: c.BearishMultiplier,
		LiquidationBuffer: c.LiquidationBuffer,
		VaRFactor:         c.VaRFactor,
	}
}

// agentList materialises domain agents from configuration.
func agentList(agents []config.AgentConfig) []domain.Agent {
	out := make([]domain.Agent, 0, len(agents))
	for _, a := range agents {
		out = append(out, domain.Agent{
			ID:          a.ID,
			RiskProfile: domain.RiskProfile(strings.ToLower(a.RiskProfile)),
			TotalMargin: a.TotalMargin,
		})
	}
	return out
}

// venueLiquidity builds the liquidity oracle's score table from the
// configured venues.
func venueLiquidity(venues []config.VenueConfig) map[string]float64 {
	scores := make(map[string]float64, len(venues))
	for _, v := range venues {
		scores[v.Name] = v.Liquidity
	}
	return scores
}
