package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arbstack/arbengine/internal/domain"
	"github.com/arbstack/arbengine/internal/oracle"
	"github.com/arbstack/arbengine/internal/pricebook"
)

// Triangular evaluates configured three-pair cycles (A/B, B/C, C/A) on
// aggregated mid prices: traversing the cycle with one unit of capital must
// compound to more than one unit after the profit threshold.
type Triangular struct {
	book      *pricebook.Book
	gas       oracle.GasEstimator
	liquidity oracle.LiquidityOracle
	cfg       Config
	logger    *slog.Logger
}

// NewTriangular creates the triangular detector.
func NewTriangular(book *pricebook.Book, gas oracle.GasEstimator, liquidity oracle.LiquidityOracle, cfg Config, logger *slog.Logger) *Triangular {
	return &Triangular{
		book:      book,
		gas:       gas,
		liquidity: liquidity,
		cfg:       cfg,
		logger:    logger.With(slog.String("detector", "triangular")),
	}
}

// Name returns the detector identifier.
func (t *Triangular) Name() string { return "triangular" }

// Kind returns the opportunity kind this detector emits.
func (t *Triangular) Kind() domain.OpportunityKind { return domain.OpportunityTriangular }

// Interval returns the target scan cadence.
func (t *Triangular) Interval() time.Duration { return t.cfg.TriangularInterval }

// Scan evaluates every configured cycle.
func (t *Triangular) Scan(ctx context.Context) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for _, cycle := range t.cfg.TriangularCycles {
		opp, ok := t.evaluateCycle(ctx, cycle)
		if !ok {
			continue
		}
		opps = append(opps, opp)
	}
	return opps, nil
}

func (t *Triangular) evaluateCycle(ctx context.Context, cycle [3]string) (domain.Opportunity, bool) {
	aggs := make([]domain.AggregatedPrice, 0, 3)
	compounded := 1.0
	for _, pair := range cycle {
		agg, ok := t.book.Get(pair)
		if !ok || agg.MidPrice <= 0 {
			return domain.Opportunity{}, false
		}
		compounded *= agg.MidPrice
		aggs = append(aggs, agg)
	}

	profitPct := (compounded - 1) * 100
	if profitPct < t.cfg.TriangularMinProfitPct {
		return domain.Opportunity{}, false
	}

	// Price the three swaps on the first leg's dominant chain.
	legVenue, legChain := dominantVenue(aggs[0])
	gasPrice, err := t.gas.GasPrice(ctx, legChain)
	if err != nil {
		t.logger.WarnContext(ctx, "gas oracle failed, skipping cycle",
			slog.String("cycle", cycle[0]+"-"+cycle[1]+"-"+cycle[2]),
			slog.String("error", err.Error()))
		return domain.Opportunity{}, false
	}

	gross := t.cfg.Notional * profitPct / 100
	gasCost := t.cfg.gasCostUSD(t.cfg.BaseGasUnits+3*t.cfg.SwapGasUnits, gasPrice)
	slippage := t.cfg.slippageCostUSD()
	net := gross - gasCost - slippage
	if net < t.cfg.MinProfitUSD {
		return domain.Opportunity{}, false
	}

	var liqSum float64
	legs := make([]domain.ExecutionLeg, 0, 3)
	for _, agg := range aggs {
		venue, chain := dominantVenue(agg)
		liqSum += t.liquidity.VenueLiquidity(venue)
		legs = append(legs, domain.ExecutionLeg{
			Venue:  venue,
			Chain:  chain,
			Pair:   agg.Pair,
			Side:   domain.OrderSideSell,
			Price:  agg.MidPrice,
			Amount: t.cfg.Notional / agg.MidPrice,
		})
	}
	liqScore := liqSum / 3
	now := time.Now().UTC()

	opp := domain.Opportunity{
		ID:              uuid.New().String(),
		Kind:            domain.OpportunityTriangular,
		Pair:            cycle[0],
		BuyVenue:        legVenue,
		BuyChain:        legChain,
		SellVenue:       legVenue,
		SellChain:       legChain,
		BuyPrice:        aggs[0].MidPrice,
		SellPrice:       aggs[2].MidPrice,
		SpreadPct:       profitPct,
		ProfitEstimate:  gross,
		RequiredCapital: t.cfg.Notional,
		GasCostEstimate: gasCost,
		SlippageCost:    slippage,
		NetProfit:       net,
		Confidence:      clamp01(0.4 + profitPct*0.6),
		LiquidityScore:  liqScore,
		EstExecution:    45 * time.Second,
		DetectedAt:      now,
		ValidUntil:      now.Add(t.cfg.TriangularValidity),
		Status:          domain.OpportunityDetected,
		Legs:            legs,
		RiskFactors:     []string{"multi_leg_timing"},
	}
	t.logger.DebugContext(ctx, "triangular opportunity detected",
		slog.String("cycle", cycle[0]+"-"+cycle[1]+"-"+cycle[2]),
		slog.Float64("profit_pct", profitPct),
		slog.Float64("net_profit", net),
	)
	return opp, true
}

// dominantVenue picks the venue contributing the most liquidity to a pair.
func dominantVenue(agg domain.AggregatedPrice) (venue, chain string) {
	var best float64 = -1
	for _, u := range agg.Venues {
		if u.Liquidity > best {
			best = u.Liquidity
			venue, chain = u.Venue, u.Chain
		}
	}
	return venue, chain
}
