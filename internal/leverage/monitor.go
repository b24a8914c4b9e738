package leverage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/arbstack/arbengine/internal/domain"
	"github.com/arbstack/arbengine/internal/metrics"
)

// MonitorConfig holds the margin monitor's tunables.
type MonitorConfig struct {
	Interval         time.Duration // evaluation cadence, default 1s
	DeleverThreshold float64       // usage ratio that triggers auto-delever, default 0.85
}

// MonitorDefaults returns the monitor parameters used when config leaves
// them unset.
func MonitorDefaults() MonitorConfig {
	return MonitorConfig{
		Interval:         time.Second,
		DeleverThreshold: 0.85,
	}
}

// Monitor continuously evaluates margin status per agent and force-closes
// positions when usage breaches the delever threshold. Auto-deleveraging is
// the only path that destroys a position outside an explicit close request.
type Monitor struct {
	manager *Manager
	agents  domain.AgentRegistry
	cfg     MonitorConfig
	logger  *slog.Logger
}

// NewMonitor creates a Monitor over the given manager's position table.
func NewMonitor(manager *Manager, agents domain.AgentRegistry, cfg MonitorConfig, logger *slog.Logger) *Monitor {
	return &Monitor{
		manager: manager,
		agents:  agents,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "margin_monitor")),
	}
}

// Run loops over all registered agents on the configured cadence. Loop-body
// errors are logged and never stop the monitor.
func (mo *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(mo.cfg.Interval)
	defer ticker.Stop()

	mo.logger.Info("margin monitor started", slog.Duration("interval", mo.cfg.Interval))
	defer mo.logger.Info("margin monitor stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			mo.RunOnce(ctx)
		}
	}
}

// RunOnce evaluates every agent and auto-delervers the ones past the
// threshold.
func (mo *Monitor) RunOnce(ctx context.Context) {
	agents, err := mo.agents.List(ctx)
	if err != nil {
		mo.logger.WarnContext(ctx, "agent registry list failed", slog.String("error", err.Error()))
		return
	}
	for _, agent := range agents {
		status, err := mo.Evaluate(ctx, agent.ID)
		if err != nil {
			mo.logger.WarnContext(ctx, "margin evaluation failed",
				slog.String("agent", agent.ID), slog.String("error", err.Error()))
			continue
		}
		if status == domain.MarginCritical || status == domain.MarginLiquidation {
			if _, err := mo.AutoDelever(ctx, agent.ID); err != nil {
				mo.logger.WarnContext(ctx, "auto-delever failed",
					slog.String("agent", agent.ID), slog.String("error", err.Error()))
			}
		}
	}
}

// Evaluate recomputes the agent's margin status from current usage. On any
// error the conservative fallback (critical) is returned with the error;
// the status is never guessed optimistic.
func (mo *Monitor) Evaluate(ctx context.Context, agentID string) (domain.MarginStatus, error) {
	agent, err := mo.agents.Get(ctx, agentID)
	if err != nil {
		return domain.MarginCritical, fmt.Errorf("margin monitor: agent %s: %w", agentID, err)
	}
	if agent.TotalMargin <= 0 {
		return domain.MarginCritical, fmt.Errorf("margin monitor: agent %s has no margin: %w",
			agentID, domain.ErrCalculation)
	}

	usage := mo.manager.MarginUsed(agentID) / agent.TotalMargin
	metrics.MarginUsage.WithLabelValues(agentID).Set(usage)
	return domain.MarginStatusFor(usage), nil
}

// AutoDelever force-closes open positions, worst unrealized PnL first, one
// at a time, re-evaluating after each close and stopping as soon as the
// agent is back to safe. It returns the IDs of the closed positions. Nothing
// happens below the delever threshold.
func (mo *Monitor) AutoDelever(ctx context.Context, agentID string) ([]string, error) {
	agent, err := mo.agents.Get(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("margin monitor: agent %s: %w", agentID, err)
	}
	if agent.TotalMargin <= 0 {
		return nil, fmt.Errorf("margin monitor: agent %s has no margin: %w", agentID, domain.ErrCalculation)
	}
	if mo.manager.MarginUsed(agentID)/agent.TotalMargin < mo.cfg.DeleverThreshold {
		return nil, nil
	}

	var closed []string
	for {
		status := domain.MarginStatusFor(mo.manager.MarginUsed(agentID) / agent.TotalMargin)
		if status == domain.MarginSafe {
			break
		}

		open := mo.manager.OpenPositions(agentID)
		if len(open) == 0 {
			break
		}
		sort.Slice(open, func(i, j int) bool {
			return open[i].UnrealizedPnL < open[j].UnrealizedPnL
		})

		worst := open[0]
		if err := mo.manager.ClosePosition(ctx, worst.ID); err != nil {
			return closed, fmt.Errorf("margin monitor: close %s: %w", worst.ID, err)
		}
		closed = append(closed, worst.ID)
		metrics.PositionsDelevered.Inc()

		mo.logger.WarnContext(ctx, "position auto-delevered",
			slog.String("agent", agentID),
			slog.String("position_id", worst.ID),
			slog.Float64("unrealized_pnl", worst.UnrealizedPnL),
			slog.String("status_before", string(status)),
		)
	}
	return closed, nil
}
