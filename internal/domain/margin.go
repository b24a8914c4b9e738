package domain

// MarginStatus classifies how close an agent's account is to liquidation.
// It is a pure function of the margin-usage ratio, recomputed on every
// monitor cycle, and never set manually except to the conservative fallback
// on calculation error.
type MarginStatus string

const (
	MarginSafe        MarginStatus = "safe"        // usage < 50%
	MarginWarning     MarginStatus = "warning"     // 50% <= usage < 80%
	MarginCritical    MarginStatus = "critical"    // 80% <= usage < 95%
	MarginLiquidation MarginStatus = "liquidation" // usage >= 95%
)

// MarginStatusFor maps a margin-usage ratio (0..1) to its status band.
func MarginStatusFor(usage float64) MarginStatus {
	switch {
	case usage < 0.5:
		return MarginSafe
	case usage < 0.8:
		return MarginWarning
	case usage < 0.95:
		return MarginCritical
	default:
		return MarginLiquidation
	}
}

// RiskTier is a coarse classification of an agent's leverage risk.
type RiskTier string

const (
	RiskTierLow    RiskTier = "low"    // usage < 50%
	RiskTierMedium RiskTier = "medium" // 50% <= usage < 80%
	RiskTierHigh   RiskTier = "high"   // usage >= 80%
)

// LeverageRiskMetrics aggregates an agent's leverage exposure.
type LeverageRiskMetrics struct {
	AgentID           string
	MarginUsagePct    float64 // 0..100
	PortfolioLeverage float64 // notional-weighted average leverage
	LiquidationRisk   float64 // 0..100, linear in margin usage
	ValueAtRisk       float64 // quote currency, scaled by leverage
	Tier              RiskTier
	OpenPositions     int
}
