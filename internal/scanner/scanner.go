// Package scanner implements the three opportunity detectors (simple,
// triangular, cross-chain) that read the price book and emit candidate
// arbitrage opportunities.
package scanner

import (
	"context"
	"time"

	"github.com/arbstack/arbengine/internal/domain"
)

// Detector is one detection strategy. Scan performs a full pass over the
// price book and returns the candidates found; it must complete well under
// the detector's cadence and never block on I/O.
type Detector interface {
	Name() string
	Kind() domain.OpportunityKind
	Interval() time.Duration
	Scan(ctx context.Context) ([]domain.Opportunity, error)
}

// CrossChainRoute names a (pair, chain, chain) tuple the cross-chain
// detector compares.
type CrossChainRoute struct {
	Pair   string
	ChainA string
	ChainB string
}

// Config holds the tunable parameters shared across detectors.
type Config struct {
	Notional             float64 // assumed capital per opportunity, quote currency
	MinProfitUSD         float64 // net-profit floor for table admission
	MaxSlippageTolerance float64 // fraction of notional

	// Gas model: cost = units * gas price (gwei) * 1e-9 * gas token USD price.
	BaseGasUnits     float64
	SwapGasUnits     float64
	GasTokenPriceUSD float64

	// Simple detector: the spread threshold widens under congestion.
	HighCongestionCutoff float64 // congestion above this uses SpreadThresholdHighPct
	SpreadThresholdHighPct float64
	SpreadThresholdLowPct  float64
	SimpleInterval         time.Duration
	SimpleValidity         time.Duration

	// Triangular detector.
	TriangularCycles       [][3]string // pair triples, e.g. ETH/BTC, BTC/USDT, USDT/ETH
	TriangularMinProfitPct float64
	TriangularInterval     time.Duration
	TriangularValidity     time.Duration

	// Cross-chain detector.
	CrossChainRoutes       []CrossChainRoute
	BridgeCostUSD          float64
	CrossChainMinSpreadPct float64
	CrossChainInterval     time.Duration
	CrossChainValidity     time.Duration
}

// Defaults returns the scanner parameters used when the config file leaves
// them unset.
func Defaults() Config {
	return Config{
		Notional:               10_000,
		MinProfitUSD:           10,
		MaxSlippageTolerance:   0.002,
		BaseGasUnits:           21_000,
		SwapGasUnits:           120_000,
		GasTokenPriceUSD:       2_000,
		HighCongestionCutoff:   0.7,
		SpreadThresholdHighPct: 0.5,
		SpreadThresholdLowPct:  0.2,
		SimpleInterval:         50 * time.Millisecond,
		SimpleValidity:         5 * time.Minute,
		TriangularMinProfitPct: 0.1,
		TriangularInterval:     100 * time.Millisecond,
		TriangularValidity:     3 * time.Minute,
		BridgeCostUSD:          25,
		CrossChainMinSpreadPct: 0.3,
		CrossChainInterval:     200 * time.Millisecond,
		CrossChainValidity:     15 * time.Minute,
	}
}

// gasCostUSD prices a transaction of the given gas units at the current gas
// price in the quote currency.
func (c Config) gasCostUSD(units, gasPriceGwei float64) float64 {
	return units * gasPriceGwei * 1e-9 * c.GasTokenPriceUSD
}

// slippageCostUSD is the worst-case slippage deduction on the configured
// notional.
func (c Config) slippageCostUSD() float64 {
	return c.Notional * c.MaxSlippageTolerance
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
