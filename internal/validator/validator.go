// Package validator re-checks detected opportunities against freshness,
// liquidity, congestion and cost gates before they become eligible for
// execution.
package validator

import (
	"context"
	"log/slog"
	"time"

	"github.com/arbstack/arbengine/internal/domain"
	"github.com/arbstack/arbengine/internal/oracle"
)

// OpportunitySource is the slice of the opportunity table the validator
// needs.
type OpportunitySource interface {
	ListByStatus(statuses ...domain.OpportunityStatus) []domain.Opportunity
	Transition(id string, to domain.OpportunityStatus) error
}

// Executor hands a validated opportunity to the execution coordinator.
type Executor interface {
	Execute(ctx context.Context, opp domain.Opportunity) (domain.Execution, error)
}

// Config holds the validation gates.
type Config struct {
	Interval          time.Duration // cadence, default 100ms
	MinLiquidityScore float64       // default 0.3
	MaxCongestion     float64       // default 0.8
	MaxGasProfitRatio float64       // default 0.5
	MaxDetectionAge   time.Duration // stale-price guard, default 5s
	MinConfidence     float64       // execution hand-off floor, default 0.7
	AutoExecute       bool
}

// Defaults returns the validator gates used when config leaves them unset.
func Defaults() Config {
	return Config{
		Interval:          100 * time.Millisecond,
		MinLiquidityScore: 0.3,
		MaxCongestion:     0.8,
		MaxGasProfitRatio: 0.5,
		MaxDetectionAge:   5 * time.Second,
		MinConfidence:     0.7,
		AutoExecute:       true,
	}
}

// Validator runs the validation cycle over every live (detected or
// validated) opportunity.
type Validator struct {
	source     OpportunitySource
	exec       Executor
	congestion oracle.CongestionOracle
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Validator.
func New(source OpportunitySource, exec Executor, congestion oracle.CongestionOracle, cfg Config, logger *slog.Logger) *Validator {
	return &Validator{
		source:     source,
		exec:       exec,
		congestion: congestion,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "validator")),
		now:        time.Now,
	}
}

// Run loops on the configured cadence until ctx is cancelled. Each iteration
// catches its own errors; a single bad opportunity never stops the loop.
func (v *Validator) Run(ctx context.Context) error {
	ticker := time.NewTicker(v.cfg.Interval)
	defer ticker.Stop()

	v.logger.Info("validator started", slog.Duration("interval", v.cfg.Interval))
	defer v.logger.Info("validator stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			v.RunOnce(ctx)
		}
	}
}

// RunOnce performs one validation cycle.
func (v *Validator) RunOnce(ctx context.Context) {
	congestion, err := v.congestion.Congestion(ctx)
	if err != nil {
		// Conservative: over-congested blocks validation this cycle.
		v.logger.WarnContext(ctx, "congestion oracle failed, deferring validation",
			slog.String("error", err.Error()))
		congestion = 1.0
	}

	now := v.now().UTC()
	for _, opp := range v.source.ListByStatus(domain.OpportunityDetected, domain.OpportunityValidated) {
		v.check(ctx, opp, congestion, now)
	}
}

// check applies the gates to one live opportunity.
func (v *Validator) check(ctx context.Context, opp domain.Opportunity, congestion float64, now time.Time) {
	log := v.logger.With(slog.String("opp_id", opp.ID), slog.String("kind", string(opp.Kind)))

	if opp.ExpiredAt(now) {
		if err := v.source.Transition(opp.ID, domain.OpportunityExpired); err != nil {
			log.WarnContext(ctx, "expire transition failed", slog.String("error", err.Error()))
		}
		return
	}

	// Validated entries already passed the remaining gates; they are only
	// re-checked for expiry so an unexecuted one releases its dedup
	// signature once its validity window closes.
	if opp.Status == domain.OpportunityValidated {
		return
	}

	// Liquidity failure is terminal; the discrepancy is real but not
	// tradeable at size.
	if opp.LiquidityScore < v.cfg.MinLiquidityScore {
		if err := v.source.Transition(opp.ID, domain.OpportunityInsufficientLiquidity); err != nil {
			log.WarnContext(ctx, "liquidity transition failed", slog.String("error", err.Error()))
		}
		return
	}

	// Congestion and gas pressure are transient: the opportunity stays
	// detected and is re-checked next cycle until it validates or expires.
	if congestion > v.cfg.MaxCongestion {
		return
	}
	if opp.ProfitEstimate > 0 && opp.GasCostEstimate/opp.ProfitEstimate > v.cfg.MaxGasProfitRatio {
		return
	}

	// Staleness is not: a detection past the age guard can never validate,
	// so expire it and let a fresh scan of the same discrepancy replace it.
	if now.Sub(opp.DetectedAt) > v.cfg.MaxDetectionAge {
		if err := v.source.Transition(opp.ID, domain.OpportunityExpired); err != nil {
			log.WarnContext(ctx, "expire transition failed", slog.String("error", err.Error()))
		}
		return
	}

	if err := v.source.Transition(opp.ID, domain.OpportunityValidated); err != nil {
		log.WarnContext(ctx, "validate transition failed", slog.String("error", err.Error()))
		return
	}
	opp.Status = domain.OpportunityValidated
	log.DebugContext(ctx, "opportunity validated", slog.Float64("confidence", opp.Confidence))

	// High-confidence opportunities execute synchronously from the same
	// cycle; once started, the execution runs to completion or failure.
	if v.cfg.AutoExecute && v.exec != nil && opp.Confidence >= v.cfg.MinConfidence {
		if _, err := v.exec.Execute(ctx, opp); err != nil {
			log.WarnContext(ctx, "execution failed", slog.String("error", err.Error()))
		}
	}
}
