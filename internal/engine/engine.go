// Package engine owns the shared tables (price book, opportunity table,
// position table via the leverage manager) and supervises the detector,
// validator, monitor and cleanup loops.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbstack/arbengine/internal/domain"
	"github.com/arbstack/arbengine/internal/executor"
	"github.com/arbstack/arbengine/internal/leverage"
	"github.com/arbstack/arbengine/internal/metrics"
	"github.com/arbstack/arbengine/internal/pricebook"
	"github.com/arbstack/arbengine/internal/scanner"
	"github.com/arbstack/arbengine/internal/validator"
)

// Config holds the engine-level tunables.
type Config struct {
	Pairs            []string
	Retention        time.Duration // terminal-opportunity retention, default 1h
	CleanupInterval  time.Duration // default 1m
	SnapshotInterval time.Duration // position persistence cadence, default 30s
}

// Defaults returns the engine parameters used when config leaves them unset.
func Defaults() Config {
	return Config{
		Retention:        time.Hour,
		CleanupInterval:  time.Minute,
		SnapshotInterval: 30 * time.Second,
	}
}

// Engine is the root of the arbitrage pipeline. It exclusively owns the
// opportunity table and price book; external callers only get snapshot
// reads.
type Engine struct {
	book      *pricebook.Book
	table     *OpportunityTable
	detectors []scanner.Detector
	validator *validator.Validator
	coord     *executor.Coordinator
	leverage  *leverage.Manager
	monitor   *leverage.Monitor
	tracker   *metrics.Tracker

	feed   domain.PriceFeed
	mirror domain.PriceMirror // optional
	bus    domain.SignalBus   // optional

	cfg    Config
	logger *slog.Logger
}

// New assembles an Engine from its already-constructed parts.
func New(
	book *pricebook.Book,
	table *OpportunityTable,
	detectors []scanner.Detector,
	v *validator.Validator,
	coord *executor.Coordinator,
	lm *leverage.Manager,
	mon *leverage.Monitor,
	tracker *metrics.Tracker,
	feed domain.PriceFeed,
	mirror domain.PriceMirror,
	bus domain.SignalBus,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		book:      book,
		table:     table,
		detectors: detectors,
		validator: v,
		coord:     coord,
		leverage:  lm,
		monitor:   mon,
		tracker:   tracker,
		feed:      feed,
		mirror:    mirror,
		bus:       bus,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "engine")),
	}
}

// Run starts every loop and blocks until the context is cancelled. Shutdown
// is cooperative: each loop finishes its current iteration before the group
// returns.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.leverage.Restore(ctx); err != nil {
		e.logger.WarnContext(ctx, "position restore failed", slog.String("error", err.Error()))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.runFeed(ctx) })
	for _, det := range e.detectors {
		det := det
		g.Go(func() error { return e.runDetector(ctx, det) })
	}
	g.Go(func() error { return e.validator.Run(ctx) })
	g.Go(func() error { return e.monitor.Run(ctx) })
	g.Go(func() error { return e.runCleanup(ctx) })
	g.Go(func() error { return e.runSnapshots(ctx) })

	e.logger.InfoContext(ctx, "engine started",
		slog.Int("detectors", len(e.detectors)),
		slog.Int("pairs", len(e.cfg.Pairs)),
	)
	defer e.logger.Info("engine stopped")
	return g.Wait()
}

// runFeed consumes the price stream into the book, mirrors aggregates, and
// marks leveraged positions to the new mid.
func (e *Engine) runFeed(ctx context.Context) error {
	updates, err := e.feed.Subscribe(ctx, e.cfg.Pairs)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			e.book.Apply(update)
			agg, ok := e.book.Get(update.Pair)
			if !ok {
				continue
			}
			e.leverage.UpdatePrice(baseAsset(update.Pair), agg.MidPrice)
			if e.mirror != nil {
				if err := e.mirror.SetAggregated(ctx, agg); err != nil {
					e.logger.DebugContext(ctx, "price mirror failed",
						slog.String("pair", update.Pair), slog.String("error", err.Error()))
				}
			}
		}
	}
}

// runDetector loops one detector on its own cadence. A failing scan pass is
// logged and the loop continues on the next tick.
func (e *Engine) runDetector(ctx context.Context, det scanner.Detector) error {
	ticker := time.NewTicker(det.Interval())
	defer ticker.Stop()

	e.logger.Info("detector started",
		slog.String("detector", det.Name()),
		slog.Duration("interval", det.Interval()),
	)
	defer e.logger.Info("detector stopped", slog.String("detector", det.Name()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			opps, err := det.Scan(ctx)
			if err != nil {
				e.logger.WarnContext(ctx, "scan pass failed",
					slog.String("detector", det.Name()), slog.String("error", err.Error()))
				continue
			}
			for _, opp := range opps {
				e.admit(ctx, opp)
			}
		}
	}
}

// admit inserts a candidate into the table and announces it.
func (e *Engine) admit(ctx context.Context, opp domain.Opportunity) {
	if !e.table.Insert(opp) {
		return
	}
	e.tracker.OpportunityDetected(string(opp.Kind))

	if e.bus != nil {
		payload, err := json.Marshal(opp)
		if err != nil {
			return
		}
		if err := e.bus.Publish(ctx, "opportunities", payload); err != nil {
			e.logger.DebugContext(ctx, "opportunity publish failed", slog.String("error", err.Error()))
		}
		if err := e.bus.StreamAppend(ctx, "opportunities.history", payload); err != nil {
			e.logger.DebugContext(ctx, "opportunity stream append failed", slog.String("error", err.Error()))
		}
	}
}

// runCleanup prunes terminal opportunities past the retention window and
// expired executor dedup entries.
func (e *Engine) runCleanup(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed := e.table.Cleanup(time.Now().UTC(), e.cfg.Retention)
			if removed > 0 {
				e.logger.Debug("opportunities pruned", slog.Int("removed", removed))
			}
			if e.coord != nil {
				e.coord.Cleanup()
			}
		}
	}
}

// runSnapshots persists open positions on a fixed cadence for cross-restart
// durability.
func (e *Engine) runSnapshots(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.leverage.Persist(ctx)
		}
	}
}

// ActiveOpportunities returns the detected and validated opportunities
// sorted by net profit, descending. Always a best-effort snapshot.
func (e *Engine) ActiveOpportunities() []domain.Opportunity {
	return e.table.Active()
}

// PerformanceMetrics returns the current counters and latency percentiles.
func (e *Engine) PerformanceMetrics() metrics.Performance {
	return e.tracker.Snapshot()
}

// LeverageRiskMetrics aggregates the agent's leverage exposure.
func (e *Engine) LeverageRiskMetrics(ctx context.Context, agentID string) (domain.LeverageRiskMetrics, error) {
	return e.leverage.RiskMetrics(ctx, agentID)
}

// ExecuteLeveragedPosition opens a leveraged position for the agent.
func (e *Engine) ExecuteLeveragedPosition(ctx context.Context, agentID string, spec domain.PositionSpec, cond domain.MarketConditions) (domain.PositionReceipt, error) {
	return e.leverage.ExecutePosition(ctx, agentID, spec, cond)
}

// baseAsset extracts the base symbol from a pair like "ETH/USDT".
func baseAsset(pair string) string {
	if i := strings.IndexByte(pair, '/'); i > 0 {
		return pair[:i]
	}
	return pair
}
