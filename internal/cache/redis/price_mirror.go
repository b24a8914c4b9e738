package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arbstack/arbengine/internal/domain"
)

// mirrorTTL expires stale pairs so readers never see prices from a dead
// feed.
const mirrorTTL = 30 * time.Second

// PriceMirror implements domain.PriceMirror using Redis hashes. Each pair's
// aggregate is stored at "agg:{pair}" with numeric fields; the per-venue map
// is not mirrored, only the derived view external readers need.
type PriceMirror struct {
	rdb *redis.Client
}

// NewPriceMirror creates a PriceMirror backed by the given Client.
func NewPriceMirror(c *Client) *PriceMirror {
	return &PriceMirror{rdb: c.rdb}
}

func aggKey(pair string) string {
	return "agg:" + pair
}

// SetAggregated stores the pair's latest aggregated view.
func (pm *PriceMirror) SetAggregated(ctx context.Context, agg domain.AggregatedPrice) error {
	key := aggKey(agg.Pair)
	fields := map[string]interface{}{
		"bid":       formatFloat(agg.BestBid),
		"ask":       formatFloat(agg.BestAsk),
		"mid":       formatFloat(agg.MidPrice),
		"vwap":      formatFloat(agg.VWAP),
		"volume":    formatFloat(agg.TotalVolume),
		"liquidity": formatFloat(agg.TotalLiquidity),
		"venues":    strconv.Itoa(agg.VenueCount),
		"ts":        strconv.FormatInt(agg.UpdatedAt.UnixNano(), 10),
	}
	pipe := pm.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, mirrorTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: mirror price %s: %w", agg.Pair, err)
	}
	return nil
}

// GetAggregated retrieves the pair's aggregated view. It returns
// domain.ErrNotFound when the pair is absent or expired.
func (pm *PriceMirror) GetAggregated(ctx context.Context, pair string) (domain.AggregatedPrice, error) {
	vals, err := pm.rdb.HGetAll(ctx, aggKey(pair)).Result()
	if err != nil {
		return domain.AggregatedPrice{}, fmt.Errorf("redis: get mirrored price %s: %w", pair, err)
	}
	if len(vals) == 0 {
		return domain.AggregatedPrice{}, domain.ErrNotFound
	}

	agg := domain.AggregatedPrice{Pair: pair}
	agg.BestBid = parseFloat(vals["bid"])
	agg.BestAsk = parseFloat(vals["ask"])
	agg.MidPrice = parseFloat(vals["mid"])
	agg.VWAP = parseFloat(vals["vwap"])
	agg.TotalVolume = parseFloat(vals["volume"])
	agg.TotalLiquidity = parseFloat(vals["liquidity"])
	if n, err := strconv.Atoi(vals["venues"]); err == nil {
		agg.VenueCount = n
	}
	if ns, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		agg.UpdatedAt = time.Unix(0, ns).UTC()
	}
	return agg, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// Compile-time interface check.
var _ domain.PriceMirror = (*PriceMirror)(nil)
