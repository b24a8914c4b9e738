// Package leverage computes safe leverage bounds, opens and tracks
// leveraged positions, and monitors margin health per agent.
package leverage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbstack/arbengine/internal/domain"
	"github.com/arbstack/arbengine/internal/metrics"
)

// Config holds the leverage model parameters.
type Config struct {
	MinLeverage float64 // 1.0
	MaxLeverage float64 // 20.0

	// Base leverage per risk profile before market adjustments.
	BaseConservative float64 // 3x
	BaseModerate     float64 // 10x
	BaseAggressive   float64 // 20x

	// Volatility multiplier: max(VolatilityFloor, 1 - volatility*VolatilityWeight).
	VolatilityWeight float64 // 20
	VolatilityFloor  float64 // 0.3

	// Sentiment multipliers.
	BullishMultiplier float64 // 1.2
	BearishMultiplier float64 // 0.7

	// LiquidationBuffer is the safety margin applied before the true
	// liquidation point (flat fraction of entry, default 5%). Kept
	// configurable; see DESIGN.md.
	LiquidationBuffer float64

	// VaRFactor is the assumed adverse move used for value-at-risk
	// (fraction of notional).
	VaRFactor float64 // 0.05
}

// Defaults returns the leverage parameters used when config leaves them
// unset.
func Defaults() Config {
	return Config{
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
	}
}

// Manager owns the position table. All mutation happens under its lock;
// readers receive copies.
type Manager struct {
	mu        sync.Mutex
	positions map[string]*domain.LeveragePosition

	agents domain.AgentRegistry
	store  domain.PositionStore // optional persistence
	cfg    Config
	logger *slog.Logger
}

// NewManager creates a Manager. store may be nil; positions are then held in
// memory only.
func NewManager(agents domain.AgentRegistry, store domain.PositionStore, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		positions: make(map[string]*domain.LeveragePosition),
		agents:    agents,
		store:     store,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "leverage_manager")),
	}
}

// MaxLeverage computes the safe leverage bound for an agent under the given
// market conditions:
//
//	base(risk profile) * volatility multiplier * sentiment multiplier
//
// clamped to [MinLeverage, MaxLeverage]. On any lookup or calculation error
// it returns the most conservative value (1.0) together with the error.
func (m *Manager) MaxLeverage(ctx context.Context, agentID string, cond domain.MarketConditions) (float64, error) {
	agent, err := m.agents.Get(ctx, agentID)
	if err != nil {
		return m.cfg.MinLeverage, fmt.Errorf("leverage manager: agent %s: %w", agentID, err)
	}

	var base float64
	switch agent.RiskProfile {
	case domain.RiskConservative:
		base = m.cfg.BaseConservative
	case domain.RiskModerate:
		base = m.cfg.BaseModerate
	case domain.RiskAggressive:
		base = m.cfg.BaseAggressive
	default:
		return m.cfg.MinLeverage, fmt.Errorf("leverage manager: unknown risk profile %q: %w",
			agent.RiskProfile, domain.ErrCalculation)
	}

	volMult := 1 - cond.Volatility*m.cfg.VolatilityWeight
	if volMult < m.cfg.VolatilityFloor {
		volMult = m.cfg.VolatilityFloor
	}

	sentMult := 1.0
	switch cond.Sentiment {
	case domain.SentimentBullish:
		sentMult = m.cfg.BullishMultiplier
	case domain.SentimentBearish:
		sentMult = m.cfg.BearishMultiplier
	}

	return m.clampLeverage(base * volMult * sentMult), nil
}

// ExecutePosition validates and opens a leveraged position for the agent.
// It fails with domain.ErrLeverageExceeded when the requested leverage is
// above the agent's current bound, and domain.ErrInsufficientMargin when the
// required margin exceeds what the agent has free.
func (m *Manager) ExecutePosition(ctx context.Context, agentID string, spec domain.PositionSpec, cond domain.MarketConditions) (domain.PositionReceipt, error) {
	if spec.Size <= 0 || spec.EntryPrice <= 0 {
		return domain.PositionReceipt{}, fmt.Errorf("leverage manager: size and entry price must be positive: %w", domain.ErrInvalidPosition)
	}
	if spec.Side != domain.PositionLong && spec.Side != domain.PositionShort {
		return domain.PositionReceipt{}, fmt.Errorf("leverage manager: side %q: %w", spec.Side, domain.ErrInvalidPosition)
	}

	leverage := m.clampLeverage(spec.Leverage)

	maxLev, err := m.MaxLeverage(ctx, agentID, cond)
	if err != nil {
		return domain.PositionReceipt{}, err
	}
	if leverage > maxLev {
		return domain.PositionReceipt{}, fmt.Errorf("leverage manager: requested %.1fx, max %.1fx: %w",
			leverage, maxLev, domain.ErrLeverageExceeded)
	}

	agent, err := m.agents.Get(ctx, agentID)
	if err != nil {
		return domain.PositionReceipt{}, fmt.Errorf("leverage manager: agent %s: %w", agentID, err)
	}

	marginRequired := spec.Size / leverage

	m.mu.Lock()
	used := m.marginUsedLocked(agentID)
	available := agent.TotalMargin - used
	if marginRequired > available {
		m.mu.Unlock()
		return domain.PositionReceipt{}, fmt.Errorf("leverage manager: need %.2f, available %.2f: %w",
			marginRequired, available, domain.ErrInsufficientMargin)
	}

	now := time.Now().UTC()
	pos := &domain.LeveragePosition{
		ID:               uuid.New().String(),
		AgentID:          agentID,
		Asset:            spec.Asset,
		Side:             spec.Side,
		Size:             spec.Size,
		EntryPrice:       spec.EntryPrice,
		CurrentPrice:     spec.EntryPrice,
		Leverage:         leverage,
		MarginUsed:       marginRequired,
		LiquidationPrice: liquidationPrice(spec.EntryPrice, leverage, spec.Side, m.cfg.LiquidationBuffer),
		Status:           domain.PositionStatusOpen,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if agent.TotalMargin > 0 {
		pos.MarginStatus = domain.MarginStatusFor((used + marginRequired) / agent.TotalMargin)
	} else {
		pos.MarginStatus = domain.MarginCritical
	}
	m.positions[pos.ID] = pos
	usage := 0.0
	if agent.TotalMargin > 0 {
		usage = (used + marginRequired) / agent.TotalMargin
	}
	m.mu.Unlock()

	metrics.MarginUsage.WithLabelValues(agentID).Set(usage)

	if m.store != nil {
		if err := m.store.Upsert(ctx, *pos); err != nil {
			m.logger.WarnContext(ctx, "position persist failed",
				slog.String("position_id", pos.ID), slog.String("error", err.Error()))
		}
	}

	m.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("agent", agentID),
		slog.String("asset", spec.Asset),
		slog.String("side", string(spec.Side)),
		slog.Float64("leverage", leverage),
		slog.Float64("margin_used", marginRequired),
		slog.Float64("liquidation_price", pos.LiquidationPrice),
	)

	return domain.PositionReceipt{
		PositionID:       pos.ID,
		MarginUsed:       marginRequired,
		LiquidationPrice: pos.LiquidationPrice,
	}, nil
}

// UpdatePrice marks open positions in the asset to the new price and
// refreshes their unrealized PnL.
func (m *Manager) UpdatePrice(asset string, price float64) {
	if price <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, pos := range m.positions {
		if pos.Asset != asset || pos.Status != domain.PositionStatusOpen {
			continue
		}
		pos.CurrentPrice = price
		pos.UnrealizedPnL = unrealizedPnL(*pos)
		pos.UpdatedAt = now
	}
}

// ClosePosition closes an open position at its current price. This is one of
// only two paths that destroy a position; the other is auto-deleveraging.
func (m *Manager) ClosePosition(ctx context.Context, id string) error {
	m.mu.Lock()
	pos, ok := m.positions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("leverage manager: position %s: %w", id, domain.ErrNotFound)
	}
	if pos.Status == domain.PositionStatusClosed {
		m.mu.Unlock()
		return nil
	}
	now := time.Now().UTC()
	exit := pos.CurrentPrice
	pos.Status = domain.PositionStatusClosed
	pos.ClosedAt = &now
	pos.ExitPrice = &exit
	pos.UpdatedAt = now
	agentID := pos.AgentID
	pnl := pos.UnrealizedPnL
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Close(ctx, id, exit, now); err != nil {
			m.logger.WarnContext(ctx, "position close persist failed",
				slog.String("position_id", id), slog.String("error", err.Error()))
		}
	}

	m.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", id),
		slog.String("agent", agentID),
		slog.Float64("realized_pnl", pnl),
	)
	return nil
}

// OpenPositions returns copies of the agent's open positions.
func (m *Manager) OpenPositions(agentID string) []domain.LeveragePosition {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.LeveragePosition
	for _, pos := range m.positions {
		if pos.AgentID == agentID && pos.Status == domain.PositionStatusOpen {
			out = append(out, *pos)
		}
	}
	return out
}

// MarginUsed returns the total margin committed by the agent's open
// positions.
func (m *Manager) MarginUsed(agentID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marginUsedLocked(agentID)
}

// RiskMetrics aggregates the agent's leverage exposure. On calculation
// error it returns the most conservative reading (high tier, full risk)
// together with the error, never an optimistic default.
func (m *Manager) RiskMetrics(ctx context.Context, agentID string) (domain.LeverageRiskMetrics, error) {
	conservative := domain.LeverageRiskMetrics{
		AgentID:         agentID,
		MarginUsagePct:  100,
		LiquidationRisk: 100,
		Tier:            domain.RiskTierHigh,
	}

	agent, err := m.agents.Get(ctx, agentID)
	if err != nil {
		return conservative, fmt.Errorf("leverage manager: agent %s: %w", agentID, err)
	}
	if agent.TotalMargin <= 0 {
		return conservative, fmt.Errorf("leverage manager: agent %s has no margin: %w", agentID, domain.ErrCalculation)
	}

	m.mu.Lock()
	var (
		used          float64
		totalNotional float64
		levWeighted   float64
		open          int
	)
	for _, pos := range m.positions {
		if pos.AgentID != agentID || pos.Status != domain.PositionStatusOpen {
			continue
		}
		used += pos.MarginUsed
		totalNotional += pos.Size
		levWeighted += pos.Leverage * pos.Size
		open++
	}
	m.mu.Unlock()

	usage := used / agent.TotalMargin
	out := domain.LeverageRiskMetrics{
		AgentID:         agentID,
		MarginUsagePct:  usage * 100,
		LiquidationRisk: clamp(usage*100, 0, 100),
		ValueAtRisk:     totalNotional * m.cfg.VaRFactor,
		OpenPositions:   open,
	}
	if totalNotional > 0 {
		out.PortfolioLeverage = levWeighted / totalNotional
	}
	switch {
	case usage < 0.5:
		out.Tier = domain.RiskTierLow
	case usage < 0.8:
		out.Tier = domain.RiskTierMedium
	default:
		out.Tier = domain.RiskTierHigh
	}
	return out, nil
}

// Restore loads previously persisted open positions back into the table.
// Best effort; called once at startup.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	agents, err := m.agents.List(ctx)
	if err != nil {
		return fmt.Errorf("leverage manager: restore: %w", err)
	}

	restored := 0
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, agent := range agents {
		positions, err := m.store.ListOpen(ctx, agent.ID)
		if err != nil {
			m.logger.WarnContext(ctx, "position restore failed",
				slog.String("agent", agent.ID), slog.String("error", err.Error()))
			continue
		}
		for _, pos := range positions {
			cp := pos
			m.positions[pos.ID] = &cp
			restored++
		}
	}
	if restored > 0 {
		m.logger.InfoContext(ctx, "positions restored", slog.Int("count", restored))
	}
	return nil
}

// Persist saves all open positions, best effort. Called on the snapshot
// cadence.
func (m *Manager) Persist(ctx context.Context) {
	if m.store == nil {
		return
	}
	m.mu.Lock()
	snapshot := make([]domain.LeveragePosition, 0, len(m.positions))
	for _, pos := range m.positions {
		if pos.Status == domain.PositionStatusOpen {
			snapshot = append(snapshot, *pos)
		}
	}
	m.mu.Unlock()

	for _, pos := range snapshot {
		if err := m.store.Upsert(ctx, pos); err != nil {
			m.logger.WarnContext(ctx, "position snapshot failed",
				slog.String("position_id", pos.ID), slog.String("error", err.Error()))
		}
	}
}

func (m *Manager) marginUsedLocked(agentID string) float64 {
	var used float64
	for _, pos := range m.positions {
		if pos.AgentID == agentID && pos.Status == domain.PositionStatusOpen {
			used += pos.MarginUsed
		}
	}
	return used
}

func (m *Manager) clampLeverage(lev float64) float64 {
	return clamp(lev, m.cfg.MinLeverage, m.cfg.MaxLeverage)
}

// liquidationPrice places the liquidation point on the loss side of entry
// with a safety buffer before the true wipeout:
//
//	long:  entry * (1 - 1/leverage + buffer)
//	short: entry * (1 + 1/leverage - buffer)
func liquidationPrice(entry, leverage float64, side domain.PositionSide, buffer float64) float64 {
	if side == domain.PositionShort {
		return entry * (1 + 1/leverage - buffer)
	}
	return entry * (1 - 1/leverage + buffer)
}

// unrealizedPnL marks a position against its current price.
func unrealizedPnL(pos domain.LeveragePosition) float64 {
	if pos.EntryPrice <= 0 {
		return 0
	}
	move := (pos.CurrentPrice - pos.EntryPrice) / pos.EntryPrice
	if pos.Side == domain.PositionShort {
		move = -move
	}
	return move * pos.Size
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
