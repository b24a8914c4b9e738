package pricebook

import (
	"testing"
	"time"

	"github.com/arbstack/arbengine/internal/domain"
)

func update(venue, pair string, price, volume float64) domain.PriceUpdate {
	return domain.PriceUpdate{
		Venue:     venue,
		Chain:     "ethereum",
		Pair:      pair,
		Price:     price,
		Volume24h: volume,
		Liquidity: 0.5,
		Timestamp: time.Now(),
	}
}

func TestApplyAggregatesAcrossVenues(t *testing.T) {
	book := New()
	book.Apply(update("uniswap", "ETH/USDT", 2000, 100))
	book.Apply(update("sushiswap", "ETH/USDT", 2010, 300))

	agg, ok := book.Get("ETH/USDT")
	if !ok {
		t.Fatal("expected aggregate for ETH/USDT")
	}
	if agg.VenueCount != 2 {
		t.Fatalf("VenueCount = %d, want 2", agg.VenueCount)
	}

	// No book on either venue: sides fall back to last prices and are
	// ordered so that bid <= mid <= ask holds.
	if agg.BestBid != 2000 {
		t.Errorf("BestBid = %v, want 2000", agg.BestBid)
	}
	if agg.BestAsk != 2010 {
		t.Errorf("BestAsk = %v, want 2010", agg.BestAsk)
	}
	if agg.MidPrice != 2005 {
		t.Errorf("MidPrice = %v, want 2005", agg.MidPrice)
	}

	wantVWAP := (2000*100.0 + 2010*300.0) / 400.0
	if agg.VWAP != wantVWAP {
		t.Errorf("VWAP = %v, want %v", agg.VWAP, wantVWAP)
	}
	if agg.TotalVolume != 400 {
		t.Errorf("TotalVolume = %v, want 400", agg.TotalVolume)
	}
}

func TestApplyUpsertsSameVenue(t *testing.T) {
	book := New()
	book.Apply(update("uniswap", "ETH/USDT", 2000, 100))
	book.Apply(update("uniswap", "ETH/USDT", 2050, 120))

	agg, _ := book.Get("ETH/USDT")
	if agg.VenueCount != 1 {
		t.Fatalf("VenueCount = %d, want 1 after upsert", agg.VenueCount)
	}
	if agg.MidPrice != 2050 {
		t.Errorf("MidPrice = %v, want 2050", agg.MidPrice)
	}
}

func TestApplyUsesBookSidesWhenPresent(t *testing.T) {
	book := New()
	u := update("uniswap", "ETH/USDT", 2000, 100)
	u.BestBid = 1999
	u.BestAsk = 2001
	book.Apply(u)

	agg, _ := book.Get("ETH/USDT")
	if agg.BestBid != 1999 || agg.BestAsk != 2001 {
		t.Errorf("sides = %v/%v, want 1999/2001", agg.BestBid, agg.BestAsk)
	}
	if agg.MidPrice != 2000 {
		t.Errorf("MidPrice = %v, want 2000", agg.MidPrice)
	}
}

func TestAggregateOrdersCrossedVenueBooks(t *testing.T) {
	// Two venues whose local books do not cross individually but do across
	// venues (the arbitrage condition). The aggregate must still satisfy
	// bid <= mid <= ask.
	book := New()

	lo := update("uniswap", "ETH/USDT", 100.0, 100)
	lo.BestBid, lo.BestAsk = 99.95, 100.05
	book.Apply(lo)

	hi := update("sushiswap", "ETH/USDT", 100.5, 100)
	hi.BestBid, hi.BestAsk = 100.45, 100.55
	book.Apply(hi)

	agg, _ := book.Get("ETH/USDT")
	if agg.BestBid > agg.MidPrice || agg.MidPrice > agg.BestAsk {
		t.Errorf("ordering violated: bid=%v mid=%v ask=%v", agg.BestBid, agg.MidPrice, agg.BestAsk)
	}
	if agg.BestBid != 100.05 || agg.BestAsk != 100.45 {
		t.Errorf("sides = %v/%v, want 100.05/100.45", agg.BestBid, agg.BestAsk)
	}
}

func TestApplyRejectsInvalidUpdates(t *testing.T) {
	tests := []struct {
		name string
		u    domain.PriceUpdate
	}{
		{"missing pair", update("uniswap", "", 2000, 100)},
		{"missing venue", update("", "ETH/USDT", 2000, 100)},
		{"zero price", update("uniswap", "ETH/USDT", 0, 100)},
		{"negative price", update("uniswap", "ETH/USDT", -5, 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := New()
			book.Apply(tt.u)
			if len(book.Pairs()) != 0 {
				t.Errorf("book tracked invalid update %+v", tt.u)
			}
		})
	}
}

func TestGetReturnsCopy(t *testing.T) {
	book := New()
	book.Apply(update("uniswap", "ETH/USDT", 2000, 100))

	agg, _ := book.Get("ETH/USDT")
	delete(agg.Venues, "uniswap")

	again, _ := book.Get("ETH/USDT")
	if len(again.Venues) != 1 {
		t.Error("mutating the returned aggregate leaked into the book")
	}
}

func TestSnapshotCoversAllPairs(t *testing.T) {
	book := New()
	book.Apply(update("uniswap", "ETH/USDT", 2000, 100))
	book.Apply(update("uniswap", "BTC/USDT", 40000, 50))

	snap := book.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d pairs, want 2", len(snap))
	}
	if _, ok := snap["BTC/USDT"]; !ok {
		t.Error("snapshot missing BTC/USDT")
	}
}
