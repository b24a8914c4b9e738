// Package oracle defines the pluggable market-environment inputs the
// scanners depend on (gas price, network congestion, venue liquidity) and
// ships deterministic simulated defaults. A production deployment swaps in
// real oracle clients behind the same interfaces.
package oracle

import (
	"context"
	"math"
	"sync"
	"time"
)

// GasEstimator reports the current gas price for a chain in the chain's
// native gas unit (gwei for EVM chains).
type GasEstimator interface {
	GasPrice(ctx context.Context, chain string) (float64, error)
}

// CongestionOracle reports a 0..1 network congestion score.
type CongestionOracle interface {
	Congestion(ctx context.Context) (float64, error)
}

// LiquidityOracle scores a venue's depth on a 0..1 scale.
type LiquidityOracle interface {
	VenueLiquidity(venue string) float64
}

// SimGasEstimator produces a smoothly varying gas price around a configured
// base, deterministic for a given clock. It stands in for a real gas oracle
// in scan/dev runs.
type SimGasEstimator struct {
	Base      float64 // gwei
	Amplitude float64 // gwei swing
	now       func() time.Time
}

// NewSimGasEstimator creates a simulator oscillating around base gwei.
func NewSimGasEstimator(base, amplitude float64) *SimGasEstimator {
	return &SimGasEstimator{Base: base, Amplitude: amplitude, now: time.Now}
}

// GasPrice returns the simulated gas price. The chain argument only shifts
// the phase so different chains do not move in lockstep.
func (s *SimGasEstimator) GasPrice(_ context.Context, chain string) (float64, error) {
	phase := float64(len(chain))
	t := float64(s.now().Unix()%300) / 300
	return s.Base + s.Amplitude*math.Sin(2*math.Pi*t+phase), nil
}

// SimCongestionOracle produces a 0..1 congestion score that drifts over a
// five minute cycle.
type SimCongestionOracle struct {
	now func() time.Time
}

// NewSimCongestionOracle creates the simulator.
func NewSimCongestionOracle() *SimCongestionOracle {
	return &SimCongestionOracle{now: time.Now}
}

// Congestion returns the simulated score.
func (s *SimCongestionOracle) Congestion(_ context.Context) (float64, error) {
	t := float64(s.now().Unix()%300) / 300
	return 0.5 + 0.5*math.Sin(2*math.Pi*t), nil
}

// StaticCongestionOracle always reports a fixed score. Used in tests and as
// a pinned override.
type StaticCongestionOracle struct {
	Score float64
}

// Congestion returns the fixed score.
func (s StaticCongestionOracle) Congestion(context.Context) (float64, error) {
	return s.Score, nil
}

// StaticLiquidityOracle scores venues from a fixed table with a fallback
// default for unknown venues.
type StaticLiquidityOracle struct {
	mu       sync.RWMutex
	scores   map[string]float64
	defScore float64
}

// NewStaticLiquidityOracle creates an oracle from a venue score table.
// Unknown venues score def.
func NewStaticLiquidityOracle(scores map[string]float64, def float64) *StaticLiquidityOracle {
	cp := make(map[string]float64, len(scores))
	for k, v := range scores {
		cp[k] = v
	}
	return &StaticLiquidityOracle{scores: cp, defScore: def}
}

// VenueLiquidity returns the venue's configured score.
func (o *StaticLiquidityOracle) VenueLiquidity(venue string) float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if s, ok := o.scores[venue]; ok {
		return s
	}
	return o.defScore
}

// SetVenueLiquidity updates one venue's score at runtime.
func (o *StaticLiquidityOracle) SetVenueLiquidity(venue string, score float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scores[venue] = score
}
