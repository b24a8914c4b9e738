// Package pricebook maintains the in-memory latest-price cache per
// (pair, venue) and derives the cross-venue aggregated view.
package pricebook

import (
	"sync"
	"time"

	"github.com/arbstack/arbengine/internal/domain"
)

// Book is the engine-owned price table. Apply is an O(1) upsert into the
// per-pair venue map followed by a recompute of that pair's aggregate.
// All methods are safe for concurrent use and never block on I/O.
type Book struct {
	mu    sync.RWMutex
	pairs map[string]*pairEntry
}

type pairEntry struct {
	venues map[string]domain.PriceUpdate
	agg    domain.AggregatedPrice
}

// New creates an empty Book.
func New() *Book {
	return &Book{pairs: make(map[string]*pairEntry)}
}

// Apply upserts a price update and recomputes the pair's aggregate.
func (b *Book) Apply(update domain.PriceUpdate) {
	if update.Pair == "" || update.Venue == "" || update.Price <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.pairs[update.Pair]
	if !ok {
		entry = &pairEntry{venues: make(map[string]domain.PriceUpdate)}
		b.pairs[update.Pair] = entry
	}
	entry.venues[update.Venue] = update
	entry.agg = aggregate(update.Pair, entry.venues)
}

// Get returns the aggregated view for a pair, or false when the pair has
// never been seen. The returned value holds a copy of the venue map.
func (b *Book) Get(pair string) (domain.AggregatedPrice, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.pairs[pair]
	if !ok {
		return domain.AggregatedPrice{}, false
	}
	return cloneAggregate(entry.agg), true
}

// Pairs returns all pair symbols currently tracked.
func (b *Book) Pairs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.pairs))
	for pair := range b.pairs {
		out = append(out, pair)
	}
	return out
}

// Snapshot returns aggregates for every tracked pair.
func (b *Book) Snapshot() map[string]domain.AggregatedPrice {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]domain.AggregatedPrice, len(b.pairs))
	for pair, entry := range b.pairs {
		out[pair] = cloneAggregate(entry.agg)
	}
	return out
}

// aggregate derives the cross-venue view. Best bid is the highest bid across
// venues and best ask the lowest ask, falling back to the venue's last price
// when the feed carries no book. When venues cross, the sides are reordered
// so the aggregate always satisfies bid <= mid <= ask; the cross itself is
// the scanners' business and they read the per-venue quotes directly. Mid is
// the bid/ask midpoint when both sides exist, otherwise the plain mean of
// venue prices.
func aggregate(pair string, venues map[string]domain.PriceUpdate) domain.AggregatedPrice {
	agg := domain.AggregatedPrice{
		Pair:   pair,
		Venues: venues,
	}

	var (
		priceSum     float64
		weightedSum  float64
		latestUpdate time.Time
	)
	for _, u := range venues {
		bid := u.BestBid
		if bid <= 0 {
			bid = u.Price
		}
		ask := u.BestAsk
		if ask <= 0 {
			ask = u.Price
		}
		if bid > agg.BestBid {
			agg.BestBid = bid
		}
		if agg.BestAsk == 0 || ask < agg.BestAsk {
			agg.BestAsk = ask
		}
		priceSum += u.Price
		weightedSum += u.Price * u.Volume24h
		agg.TotalVolume += u.Volume24h
		agg.TotalLiquidity += u.Liquidity
		if u.Timestamp.After(latestUpdate) {
			latestUpdate = u.Timestamp
		}
	}

	agg.VenueCount = len(venues)
	agg.UpdatedAt = latestUpdate
	if agg.BestBid > agg.BestAsk && agg.BestAsk > 0 {
		agg.BestBid, agg.BestAsk = agg.BestAsk, agg.BestBid
	}
	if agg.HasBothSides() {
		agg.MidPrice = (agg.BestBid + agg.BestAsk) / 2
	} else if agg.VenueCount > 0 {
		agg.MidPrice = priceSum / float64(agg.VenueCount)
	}
	if agg.TotalVolume > 0 {
		agg.VWAP = weightedSum / agg.TotalVolume
	} else {
		agg.VWAP = agg.MidPrice
	}
	return agg
}

func cloneAggregate(agg domain.AggregatedPrice) domain.AggregatedPrice {
	out := agg
	out.Venues = make(map[string]domain.PriceUpdate, len(agg.Venues))
	for venue, u := range agg.Venues {
		out.Venues[venue] = u
	}
	return out
}
