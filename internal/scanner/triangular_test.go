package scanner

import (
	"context"
	"testing"

	"github.com/arbstack/arbengine/internal/domain"
	"github.com/arbstack/arbengine/internal/oracle"
	"github.com/arbstack/arbengine/internal/pricebook"
)

func newTriangular(book *pricebook.Book, cfg Config) *Triangular {
	liquidity := oracle.NewStaticLiquidityOracle(map[string]float64{"uniswap": 0.9}, 0.5)
	return NewTriangular(book, staticGas{gwei: 30}, liquidity, cfg, testLogger())
}

func triCycleBook(mids [3]float64) *pricebook.Book {
	book := pricebook.New()
	pairs := [3]string{"ETH/BTC", "BTC/USDT", "USDT/ETH"}
	for i, pair := range pairs {
		feedBook(book, "uniswap", "ethereum", pair, mids[i])
	}
	return book
}

func TestTriangularDetectsProfitableCycle(t *testing.T) {
	// Compounding one unit through the cycle yields 1.01, a 1% profit.
	book := triCycleBook([3]float64{1.01, 1.0, 1.0})

	cfg := Defaults()
	cfg.TriangularCycles = [][3]string{{"ETH/BTC", "BTC/USDT", "USDT/ETH"}}
	opps, err := newTriangular(book, cfg).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}

	opp := opps[0]
	if opp.Kind != domain.OpportunityTriangular {
		t.Errorf("Kind = %s, want triangular", opp.Kind)
	}
	if opp.SpreadPct < 0.99 || opp.SpreadPct > 1.01 {
		t.Errorf("SpreadPct = %v, want ~1.0", opp.SpreadPct)
	}
	if len(opp.Legs) != 3 {
		t.Fatalf("got %d legs, want 3", len(opp.Legs))
	}
	if opp.NetProfit <= 0 {
		t.Errorf("NetProfit = %v, want > 0", opp.NetProfit)
	}
}

func TestTriangularIgnoresThinCycle(t *testing.T) {
	// 0.05% round trip is below the 0.1% floor.
	book := triCycleBook([3]float64{1.0005, 1.0, 1.0})

	cfg := Defaults()
	cfg.TriangularCycles = [][3]string{{"ETH/BTC", "BTC/USDT", "USDT/ETH"}}
	opps, err := newTriangular(book, cfg).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("got %d opportunities, want 0", len(opps))
	}
}

func TestTriangularSkipsIncompleteCycle(t *testing.T) {
	book := pricebook.New()
	feedBook(book, "uniswap", "ethereum", "ETH/BTC", 1.05)
	feedBook(book, "uniswap", "ethereum", "BTC/USDT", 1.0)
	// USDT/ETH never quoted.

	cfg := Defaults()
	cfg.TriangularCycles = [][3]string{{"ETH/BTC", "BTC/USDT", "USDT/ETH"}}
	opps, err := newTriangular(book, cfg).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("got %d opportunities with a missing pair, want 0", len(opps))
	}
}

func TestTriangularLegsUseDominantVenue(t *testing.T) {
	book := pricebook.New()
	pairs := [3]string{"ETH/BTC", "BTC/USDT", "USDT/ETH"}
	for _, pair := range pairs {
		book.Apply(domain.PriceUpdate{
			Venue: "thin", Chain: "ethereum", Pair: pair,
			Price: 1.01, Liquidity: 0.1,
		})
		book.Apply(domain.PriceUpdate{
			Venue: "deep", Chain: "ethereum", Pair: pair,
			Price: 1.01, Liquidity: 0.9,
		})
	}

	cfg := Defaults()
	cfg.TriangularCycles = [][3]string{pairs}
	opps, err := newTriangular(book, cfg).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	for i, leg := range opps[0].Legs {
		if leg.Venue != "deep" {
			t.Errorf("leg %d venue = %s, want deep", i, leg.Venue)
		}
	}
}
