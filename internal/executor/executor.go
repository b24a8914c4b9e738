// Package executor drives the simulated multi-leg execution of validated
// opportunities: it requests funding, replays each leg through the pluggable
// leg executor, and records the realized outcome.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arbstack/arbengine/internal/domain"
	"github.com/arbstack/arbengine/internal/metrics"
)

// LegExecutor performs one atomic trade leg. The default implementation
// simulates fills; a real venue adapter substitutes here without touching
// the coordinator.
type LegExecutor interface {
	Execute(ctx context.Context, leg domain.ExecutionLeg) (domain.LegResult, error)
}

// OpportunityMarker is the slice of the opportunity table the coordinator
// needs: moving an opportunity to its terminal execution status.
type OpportunityMarker interface {
	Transition(id string, to domain.OpportunityStatus) error
}

// Config holds the coordinator's tunables.
type Config struct {
	// MaxSlippageTolerance is the configured slippage bound (fraction of
	// notional). The deduction applied to net profit is capped at
	// SlippageCap regardless.
	MaxSlippageTolerance float64
	SlippageCap          float64 // default 0.002
	AgentID              string  // owning agent recorded on executions
}

// Coordinator executes validated opportunities. Once Execute starts it runs
// to completion or failure; there is no pre-emptive cancellation and no
// automatic retry of the same opportunity.
type Coordinator struct {
	marker  OpportunityMarker
	legs    LegExecutor
	funding domain.FundingService
	store   domain.ExecutionStore // optional
	bus     domain.SignalBus      // optional
	tracker *metrics.Tracker
	dedup   *Dedup
	cfg     Config
	logger  *slog.Logger
}

// NewCoordinator creates a Coordinator. store and bus may be nil; execution
// persistence and event publishing are then skipped.
func NewCoordinator(marker OpportunityMarker, legs LegExecutor, funding domain.FundingService, store domain.ExecutionStore, bus domain.SignalBus, tracker *metrics.Tracker, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.SlippageCap <= 0 {
		cfg.SlippageCap = 0.002
	}
	return &Coordinator{
		marker:  marker,
		legs:    legs,
		funding: funding,
		store:   store,
		bus:     bus,
		tracker: tracker,
		dedup:   NewDedup(time.Hour),
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "execution_coordinator")),
	}
}

// Execute runs the full execution of a validated opportunity and returns the
// resulting record. On any leg failure the execution and the opportunity are
// both marked failed; the opportunity is never left in validated state after
// a failed run.
func (c *Coordinator) Execute(ctx context.Context, opp domain.Opportunity) (domain.Execution, error) {
	exec := domain.Execution{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		AgentID:       c.cfg.AgentID,
		Status:        domain.ExecutionRunning,
		StartedAt:     time.Now().UTC(),
	}

	if c.dedup.IsDuplicate(opp.ID) {
		return exec, fmt.Errorf("execution coordinator: opportunity %s already attempted: %w",
			opp.ID, domain.ErrExecutionFailed)
	}

	log := c.logger.With(
		slog.String("execution_id", exec.ID),
		slog.String("opp_id", opp.ID),
		slog.String("kind", string(opp.Kind)),
	)
	log.InfoContext(ctx, "execution started",
		slog.Float64("net_profit_estimate", opp.NetProfit),
		slog.Int("legs", len(opp.Legs)),
	)

	// Fire-and-forget capital request; the simulated run proceeds on the
	// assumption that funding is eventually granted.
	reqID, err := c.funding.RequestFunding(ctx, domain.FundingRequest{
		AgentID:        c.cfg.AgentID,
		Amount:         opp.RequiredCapital,
		Reason:         "arbitrage_execution",
		Urgency:        domain.FundingUrgencyHigh,
		ExpectedReturn: opp.NetProfit,
	})
	if err != nil {
		log.WarnContext(ctx, "funding request failed, proceeding unfunded",
			slog.String("error", err.Error()))
	} else {
		log.DebugContext(ctx, "funding requested", slog.String("request_id", reqID))
	}

	for _, leg := range opp.Legs {
		res, legErr := c.legs.Execute(ctx, leg)
		if legErr != nil {
			res = domain.LegResult{Leg: leg, Success: false, Error: legErr.Error()}
		}
		exec.Legs = append(exec.Legs, res)
		exec.GasCost += res.GasUsed
		if !res.Success {
			return c.fail(ctx, exec, opp, res.Error)
		}
	}

	slip := c.cfg.MaxSlippageTolerance
	if slip > c.cfg.SlippageCap {
		slip = c.cfg.SlippageCap
	}
	exec.Slippage = slip
	exec.ActualProfit = opp.NetProfit * (1 - slip)
	exec.Status = domain.ExecutionCompleted
	now := time.Now().UTC()
	exec.CompletedAt = &now

	if err := c.marker.Transition(opp.ID, domain.OpportunityExecuted); err != nil {
		log.WarnContext(ctx, "opportunity transition failed", slog.String("error", err.Error()))
	}
	if c.tracker != nil {
		c.tracker.ExecutionCompleted(exec.ActualProfit, now.Sub(exec.StartedAt))
	}
	c.record(ctx, exec)

	log.InfoContext(ctx, "execution completed",
		slog.Float64("actual_profit", exec.ActualProfit),
		slog.Float64("gas_cost", exec.GasCost),
	)
	return exec, nil
}

// fail finalizes a failed execution and marks the opportunity failed.
func (c *Coordinator) fail(ctx context.Context, exec domain.Execution, opp domain.Opportunity, reason string) (domain.Execution, error) {
	exec.Status = domain.ExecutionFailed
	exec.Error = reason
	now := time.Now().UTC()
	exec.CompletedAt = &now

	if err := c.marker.Transition(opp.ID, domain.OpportunityFailed); err != nil {
		c.logger.WarnContext(ctx, "opportunity transition failed",
			slog.String("opp_id", opp.ID), slog.String("error", err.Error()))
	}
	if c.tracker != nil {
		c.tracker.ExecutionFailed()
	}
	c.record(ctx, exec)

	c.logger.WarnContext(ctx, "execution failed",
		slog.String("execution_id", exec.ID),
		slog.String("opp_id", opp.ID),
		slog.String("reason", reason),
	)
	return exec, fmt.Errorf("execution coordinator: %s: %w", reason, domain.ErrExecutionFailed)
}

// record persists and publishes the finished execution, best effort.
func (c *Coordinator) record(ctx context.Context, exec domain.Execution) {
	if c.store != nil {
		if err := c.store.Create(ctx, exec); err != nil {
			c.logger.WarnContext(ctx, "execution store failed",
				slog.String("execution_id", exec.ID), slog.String("error", err.Error()))
		}
	}
	if c.bus != nil {
		if payload, err := json.Marshal(exec); err == nil {
			if err := c.bus.Publish(ctx, "executions", payload); err != nil {
				c.logger.DebugContext(ctx, "execution publish failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

// Cleanup drops expired dedup entries. Called from the engine's cleanup
// loop.
func (c *Coordinator) Cleanup() {
	c.dedup.Cleanup()
}

// SimLegExecutor simulates leg fills: every leg succeeds at its expected
// price and burns a fixed synthetic gas cost.
type SimLegExecutor struct {
	PerLegGasUSD float64
	LegDelay     time.Duration
}

// Execute fills the leg after the configured simulated latency.
func (s SimLegExecutor) Execute(ctx context.Context, leg domain.ExecutionLeg) (domain.LegResult, error) {
	if s.LegDelay > 0 {
		select {
		case <-time.After(s.LegDelay):
		case <-ctx.Done():
			return domain.LegResult{Leg: leg, Success: false, Error: ctx.Err().Error()}, ctx.Err()
		}
	}
	return domain.LegResult{
		Leg:         leg,
		Success:     true,
		FilledPrice: leg.Price,
		GasUsed:     s.PerLegGasUSD,
	}, nil
}
