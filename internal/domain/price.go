package domain

import "time"

// PriceUpdate is one normalized price observation for a trading pair on a
// single venue. Feed-specific wire decoding happens upstream; by the time an
// update reaches the engine it is already in this shape. Updates are
// immutable once emitted.
type PriceUpdate struct {
	Venue     string
	Chain     string
	Pair      string
	Price     float64
	Volume24h float64
	Liquidity float64
	BestBid   float64 // optional, 0 when the feed has no book
	BestAsk   float64 // optional
	Timestamp time.Time
}

// AggregatedPrice is the cross-venue view of a single pair, recomputed on
// every PriceUpdate for that pair.
type AggregatedPrice struct {
	Pair           string
	BestBid        float64
	BestAsk        float64
	MidPrice       float64
	VWAP           float64
	TotalVolume    float64
	TotalLiquidity float64
	VenueCount     int
	Venues         map[string]PriceUpdate
	UpdatedAt      time.Time
}

// HasBothSides reports whether the aggregate carries a usable bid and ask.
func (p AggregatedPrice) HasBothSides() bool {
	return p.BestBid > 0 && p.BestAsk > 0
}
