package scanner

import (
	"context"
	"testing"

	"github.com/arbstack/arbengine/internal/domain"
	"github.com/arbstack/arbengine/internal/oracle"
	"github.com/arbstack/arbengine/internal/pricebook"
)

func newCrossChain(book *pricebook.Book, cfg Config) *CrossChain {
	liquidity := oracle.NewStaticLiquidityOracle(map[string]float64{
		"uniswap":   0.9,
		"quickswap": 0.5,
	}, 0.5)
	return NewCrossChain(book, staticGas{gwei: 30}, liquidity, cfg, testLogger())
}

func routeCfg() Config {
	cfg := Defaults()
	cfg.CrossChainRoutes = []CrossChainRoute{
		{Pair: "ETH/USDT", ChainA: "ethereum", ChainB: "polygon"},
	}
	return cfg
}

func TestCrossChainDetectsSpread(t *testing.T) {
	book := pricebook.New()
	feedBook(book, "uniswap", "ethereum", "ETH/USDT", 2000.0)
	feedBook(book, "quickswap", "polygon", "ETH/USDT", 2040.0)

	opps, err := newCrossChain(book, routeCfg()).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}

	opp := opps[0]
	if opp.Kind != domain.OpportunityCrossChain {
		t.Errorf("Kind = %s, want cross_chain", opp.Kind)
	}
	if opp.BuyChain != "ethereum" || opp.SellChain != "polygon" {
		t.Errorf("route = %s -> %s, want ethereum -> polygon", opp.BuyChain, opp.SellChain)
	}

	// Bridge cost rides in the gas estimate.
	baseGas := routeCfg().gasCostUSD(routeCfg().BaseGasUnits+2*routeCfg().SwapGasUnits, 30)
	if opp.GasCostEstimate <= baseGas {
		t.Errorf("GasCostEstimate = %v, want > %v (bridge cost included)", opp.GasCostEstimate, baseGas)
	}
}

func TestCrossChainBridgeCostGatesThinSpread(t *testing.T) {
	// 0.4% raw spread minus the 0.25% bridge cost leaves 0.15%, below the
	// 0.3% floor.
	book := pricebook.New()
	feedBook(book, "uniswap", "ethereum", "ETH/USDT", 2000.0)
	feedBook(book, "quickswap", "polygon", "ETH/USDT", 2008.0)

	opps, err := newCrossChain(book, routeCfg()).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("got %d opportunities, want 0", len(opps))
	}
}

func TestCrossChainPicksWiderDirection(t *testing.T) {
	// Polygon is cheaper here, so the route runs polygon -> ethereum.
	book := pricebook.New()
	feedBook(book, "uniswap", "ethereum", "ETH/USDT", 2040.0)
	feedBook(book, "quickswap", "polygon", "ETH/USDT", 2000.0)

	opps, err := newCrossChain(book, routeCfg()).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	if opps[0].BuyChain != "polygon" || opps[0].SellChain != "ethereum" {
		t.Errorf("route = %s -> %s, want polygon -> ethereum", opps[0].BuyChain, opps[0].SellChain)
	}
}

func TestCrossChainRequiresBothChains(t *testing.T) {
	book := pricebook.New()
	feedBook(book, "uniswap", "ethereum", "ETH/USDT", 2000.0)

	opps, err := newCrossChain(book, routeCfg()).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("got %d opportunities with one chain quoted, want 0", len(opps))
	}
}
