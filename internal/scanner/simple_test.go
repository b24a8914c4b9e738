package scanner

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/arbstack/arbengine/internal/domain"
	"github.com/arbstack/arbengine/internal/metrics"
	"github.com/arbstack/arbengine/internal/oracle"
	"github.com/arbstack/arbengine/internal/pricebook"
)

type staticGas struct{ gwei float64 }

func (s staticGas) GasPrice(context.Context, string) (float64, error) {
	return s.gwei, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func feedBook(book *pricebook.Book, venue, chain, pair string, price float64) {
	book.Apply(domain.PriceUpdate{
		Venue:     venue,
		Chain:     chain,
		Pair:      pair,
		Price:     price,
		Volume24h: 1000,
		Liquidity: 0.8,
		Timestamp: time.Now(),
	})
}

func newSimple(book *pricebook.Book, congestion float64, cfg Config) *Simple {
	liquidity := oracle.NewStaticLiquidityOracle(map[string]float64{
		"uniswap":   0.9,
		"sushiswap": 0.7,
	}, 0.5)
	return NewSimple(book, staticGas{gwei: 30}, oracle.StaticCongestionOracle{Score: congestion},
		liquidity, metrics.NewTracker(), cfg, testLogger())
}

func TestSimpleDetectsSpread(t *testing.T) {
	book := pricebook.New()
	feedBook(book, "uniswap", "ethereum", "ETH/USDT", 100.0)
	feedBook(book, "sushiswap", "ethereum", "ETH/USDT", 100.5)

	// Stock defaults: a 100 vs 100.5 two-venue spread must come out
	// profitable after gas and slippage.
	det := newSimple(book, 0.2, Defaults())

	opps, err := det.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}

	opp := opps[0]
	if opp.Kind != domain.OpportunitySimple {
		t.Errorf("Kind = %s, want simple", opp.Kind)
	}
	if opp.BuyVenue != "uniswap" || opp.SellVenue != "sushiswap" {
		t.Errorf("route = %s -> %s, want uniswap -> sushiswap", opp.BuyVenue, opp.SellVenue)
	}
	if opp.SpreadPct < 0.49 || opp.SpreadPct > 0.51 {
		t.Errorf("SpreadPct = %v, want ~0.5", opp.SpreadPct)
	}
	if opp.NetProfit != opp.ProfitEstimate-opp.GasCostEstimate-opp.SlippageCost {
		t.Errorf("NetProfit = %v, want gross - gas - slippage", opp.NetProfit)
	}
	if opp.NetProfit < Defaults().MinProfitUSD {
		t.Errorf("NetProfit = %v, below the default floor %v", opp.NetProfit, Defaults().MinProfitUSD)
	}
	if opp.Status != domain.OpportunityDetected {
		t.Errorf("Status = %s, want detected", opp.Status)
	}
	if len(opp.Legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(opp.Legs))
	}
	if opp.Legs[0].Side != domain.OrderSideBuy || opp.Legs[1].Side != domain.OrderSideSell {
		t.Error("legs must be buy then sell")
	}
	if !opp.ValidUntil.After(opp.DetectedAt) {
		t.Error("ValidUntil must be after DetectedAt")
	}
}

func TestSimpleThresholdWidensUnderCongestion(t *testing.T) {
	// A 0.3% spread clears the calm threshold (0.2%) but not the congested
	// one (0.5%).
	build := func() *pricebook.Book {
		book := pricebook.New()
		feedBook(book, "uniswap", "ethereum", "ETH/USDT", 1000.0)
		feedBook(book, "sushiswap", "ethereum", "ETH/USDT", 1003.0)
		return book
	}
	cfg := Defaults()
	cfg.MaxSlippageTolerance = 0.0001
	cfg.MinProfitUSD = 1

	calm, err := newSimple(build(), 0.2, cfg).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(calm) != 1 {
		t.Fatalf("calm network: got %d opportunities, want 1", len(calm))
	}

	congested, err := newSimple(build(), 0.9, cfg).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(congested) != 0 {
		t.Fatalf("congested network: got %d opportunities, want 0", len(congested))
	}
}

func TestSimpleSkipsSingleVenuePairs(t *testing.T) {
	book := pricebook.New()
	feedBook(book, "uniswap", "ethereum", "ETH/USDT", 2000.0)

	opps, err := newSimple(book, 0.2, Defaults()).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("got %d opportunities from one venue, want 0", len(opps))
	}
}

func TestSimpleRejectsUnprofitableSpread(t *testing.T) {
	// Wide enough spread, but gas and slippage swallow the gross profit.
	book := pricebook.New()
	feedBook(book, "uniswap", "ethereum", "ETH/USDT", 100.0)
	feedBook(book, "sushiswap", "ethereum", "ETH/USDT", 100.5)

	cfg := Defaults()
	cfg.MaxSlippageTolerance = 0.01 // slippage alone costs 1% of notional
	opps, err := newSimple(book, 0.2, cfg).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("got %d opportunities, want 0 when net profit is negative", len(opps))
	}
}

func TestSimpleRiskFactors(t *testing.T) {
	book := pricebook.New()
	feedBook(book, "uniswap", "ethereum", "ETH/USDT", 100.0)
	feedBook(book, "sushiswap", "ethereum", "ETH/USDT", 102.0)

	liquidity := oracle.NewStaticLiquidityOracle(map[string]float64{}, 0.2)
	det := NewSimple(book, staticGas{gwei: 30}, oracle.StaticCongestionOracle{Score: 0.6},
		liquidity, metrics.NewTracker(), Defaults(), testLogger())

	opps, err := det.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}

	want := map[string]bool{"high_congestion": true, "low_liquidity": true}
	for _, f := range opps[0].RiskFactors {
		delete(want, f)
	}
	if len(want) != 0 {
		t.Errorf("missing risk factors: %v", want)
	}
}
