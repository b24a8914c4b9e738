package domain

import "context"

// RiskProfile is an agent's configured risk appetite. It sets the base
// leverage before market-condition adjustments.
type RiskProfile string

const (
	RiskConservative RiskProfile = "conservative" // 3x base
	RiskModerate     RiskProfile = "moderate"     // 10x base
	RiskAggressive   RiskProfile = "aggressive"   // 20x base
)

// MarketSentiment is a coarse directional read supplied with market
// conditions.
type MarketSentiment string

const (
	SentimentBullish MarketSentiment = "bullish"
	SentimentNeutral MarketSentiment = "neutral"
	SentimentBearish MarketSentiment = "bearish"
)

// MarketConditions carries the inputs to the max-leverage calculation.
type MarketConditions struct {
	Volatility float64 // e.g. stddev of returns, 0.02 = 2%
	Sentiment  MarketSentiment
}

// Agent is the engine's view of a trading agent. Agents live in an external
// registry; the engine holds them by identifier only.
type Agent struct {
	ID          string
	RiskProfile RiskProfile
	TotalMargin float64 // quote currency; used + available
}

// AgentRegistry looks up agents by identifier. Implemented externally; the
// engine ships a static config-backed registry for single-process runs.
type AgentRegistry interface {
	Get(ctx context.Context, id string) (Agent, error)
	List(ctx context.Context) ([]Agent, error)
}
