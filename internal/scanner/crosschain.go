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

// CrossChain compares venue prices for the same pair across two chains.
// Bridging is priced as a fixed cost and the remaining spread must clear the
// configured minimum, reflecting settlement risk over the bridge window.
type CrossChain struct {
	book      *pricebook.Book
	gas       oracle.GasEstimator
	liquidity oracle.LiquidityOracle
	cfg       Config
	logger    *slog.Logger
}

// NewCrossChain creates the cross-chain detector.
func NewCrossChain(book *pricebook.Book, gas oracle.GasEstimator, liquidity oracle.LiquidityOracle, cfg Config, logger *slog.Logger) *CrossChain {
	return &CrossChain{
		book:      book,
		gas:       gas,
		liquidity: liquidity,
		cfg:       cfg,
		logger:    logger.With(slog.String("detector", "cross_chain")),
	}
}

// Name returns the detector identifier.
func (c *CrossChain) Name() string { return "cross_chain" }

// Kind returns the opportunity kind this detector emits.
func (c *CrossChain) Kind() domain.OpportunityKind { return domain.OpportunityCrossChain }

// Interval returns the target scan cadence.
func (c *CrossChain) Interval() time.Duration { return c.cfg.CrossChainInterval }

// Scan evaluates every configured route in both directions.
func (c *CrossChain) Scan(ctx context.Context) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for _, route := range c.cfg.CrossChainRoutes {
		opp, ok := c.evaluateRoute(ctx, route)
		if !ok {
			continue
		}
		opps = append(opps, opp)
	}
	return opps, nil
}

func (c *CrossChain) evaluateRoute(ctx context.Context, route CrossChainRoute) (domain.Opportunity, bool) {
	agg, ok := c.book.Get(route.Pair)
	if !ok {
		return domain.Opportunity{}, false
	}

	lowA, okA := cheapestOnChain(agg, route.ChainA)
	lowB, okB := cheapestOnChain(agg, route.ChainB)
	highA, _ := priciestOnChain(agg, route.ChainA)
	highB, _ := priciestOnChain(agg, route.ChainB)
	if !okA || !okB {
		return domain.Opportunity{}, false
	}

	// Both directions; keep the wider one.
	buy, sell := lowA, highB
	if highA.Price-lowB.Price > highB.Price-lowA.Price {
		buy, sell = lowB, highA
	}
	if sell.Price <= buy.Price || buy.Price <= 0 {
		return domain.Opportunity{}, false
	}

	spreadPct := (sell.Price - buy.Price) / buy.Price * 100
	netSpreadPct := spreadPct - c.cfg.BridgeCostUSD/c.cfg.Notional*100
	if netSpreadPct < c.cfg.CrossChainMinSpreadPct {
		return domain.Opportunity{}, false
	}

	gasPrice, err := c.gas.GasPrice(ctx, buy.Chain)
	if err != nil {
		c.logger.WarnContext(ctx, "gas oracle failed, skipping route",
			slog.String("pair", route.Pair), slog.String("error", err.Error()))
		return domain.Opportunity{}, false
	}

	gross := c.cfg.Notional * spreadPct / 100
	// Bridge cost rides in the gas estimate so net profit remains
	// gross - gas - slippage.
	gasCost := c.cfg.gasCostUSD(c.cfg.BaseGasUnits+2*c.cfg.SwapGasUnits, gasPrice) + c.cfg.BridgeCostUSD
	slippage := c.cfg.slippageCostUSD()
	net := gross - gasCost - slippage
	if net < c.cfg.MinProfitUSD {
		return domain.Opportunity{}, false
	}

	liqScore := (c.liquidity.VenueLiquidity(buy.Venue) + c.liquidity.VenueLiquidity(sell.Venue)) / 2
	amount := c.cfg.Notional / buy.Price
	now := time.Now().UTC()

	opp := domain.Opportunity{
		ID:              uuid.New().String(),
		Kind:            domain.OpportunityCrossChain,
		Pair:            route.Pair,
		BuyVenue:        buy.Venue,
		BuyChain:        buy.Chain,
		SellVenue:       sell.Venue,
		SellChain:       sell.Chain,
		BuyPrice:        buy.Price,
		SellPrice:       sell.Price,
		SpreadPct:       spreadPct,
		ProfitEstimate:  gross,
		RequiredCapital: c.cfg.Notional,
		GasCostEstimate: gasCost,
		SlippageCost:    slippage,
		NetProfit:       net,
		Confidence:      clamp01(0.3 + netSpreadPct*0.4),
		LiquidityScore:  liqScore,
		EstExecution:    10 * time.Minute,
		DetectedAt:      now,
		ValidUntil:      now.Add(c.cfg.CrossChainValidity),
		Status:          domain.OpportunityDetected,
		Legs: []domain.ExecutionLeg{
			{Venue: buy.Venue, Chain: buy.Chain, Pair: route.Pair, Side: domain.OrderSideBuy, Price: buy.Price, Amount: amount},
			{Venue: sell.Venue, Chain: sell.Chain, Pair: route.Pair, Side: domain.OrderSideSell, Price: sell.Price, Amount: amount},
		},
		RiskFactors: []string{"bridge_settlement"},
	}
	c.logger.DebugContext(ctx, "cross-chain opportunity detected",
		slog.String("pair", route.Pair),
		slog.String("buy_chain", buy.Chain),
		slog.String("sell_chain", sell.Chain),
		slog.Float64("net_spread_pct", netSpreadPct),
	)
	return opp, true
}

func cheapestOnChain(agg domain.AggregatedPrice, chain string) (domain.PriceUpdate, bool) {
	var best domain.PriceUpdate
	for _, u := range agg.Venues {
		if u.Chain != chain {
			continue
		}
		if best.Venue == "" || u.Price < best.Price {
			best = u
		}
	}
	return best, best.Venue != ""
}

func priciestOnChain(agg domain.AggregatedPrice, chain string) (domain.PriceUpdate, bool) {
	var best domain.PriceUpdate
	for _, u := range agg.Venues {
		if u.Chain != chain {
			continue
		}
		if best.Venue == "" || u.Price > best.Price {
			best = u
		}
	}
	return best, best.Venue != ""
}
