package feed

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/arbstack/arbengine/internal/domain"
)

// SimVenue describes one simulated venue quoting every configured pair at a
// small offset from the reference price.
type SimVenue struct {
	Name      string
	Chain     string
	BiasPct   float64 // persistent price offset vs. reference, in percent
	Liquidity float64
}

// SimConfig configures the random-walk feed simulator.
type SimConfig struct {
	Pairs     map[string]float64 // pair -> starting reference price
	Venues    []SimVenue
	Interval  time.Duration // tick cadence, default 100ms
	StepPct   float64       // max random-walk step per tick, default 0.05%
	JitterPct float64       // per-venue noise around the reference, default 0.1%
	Volume24h float64
	Seed      int64
}

// SimFeed emits a random-walk PriceUpdate stream per (pair, venue). It backs
// scan-mode dev runs where no upstream stream is available.
type SimFeed struct {
	cfg    SimConfig
	logger *slog.Logger
}

// NewSimFeed creates a simulator.
func NewSimFeed(cfg SimConfig, logger *slog.Logger) *SimFeed {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if cfg.StepPct <= 0 {
		cfg.StepPct = 0.05
	}
	if cfg.JitterPct <= 0 {
		cfg.JitterPct = 0.1
	}
	if cfg.Volume24h <= 0 {
		cfg.Volume24h = 1_000_000
	}
	return &SimFeed{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "sim_feed")),
	}
}

// Subscribe starts the simulation for the requested pairs. Pairs without a
// configured reference price are ignored.
func (f *SimFeed) Subscribe(ctx context.Context, pairs []string) (<-chan domain.PriceUpdate, error) {
	refs := make(map[string]float64)
	for _, pair := range pairs {
		if p, ok := f.cfg.Pairs[pair]; ok {
			refs[pair] = p
		}
	}

	out := make(chan domain.PriceUpdate, 256)
	go func() {
		defer close(out)

		seed := f.cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))

		ticker := time.NewTicker(f.cfg.Interval)
		defer ticker.Stop()

		f.logger.Info("sim feed started",
			slog.Int("pairs", len(refs)),
			slog.Int("venues", len(f.cfg.Venues)),
		)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now().UTC()
				for pair, ref := range refs {
					// Random-walk the reference.
					ref *= 1 + (rng.Float64()*2-1)*f.cfg.StepPct/100
					refs[pair] = ref
					for _, venue := range f.cfg.Venues {
						price := ref * (1 + venue.BiasPct/100) * (1 + (rng.Float64()*2-1)*f.cfg.JitterPct/100)
						half := price * 0.0005
						update := domain.PriceUpdate{
							Venue:     venue.Name,
							Chain:     venue.Chain,
							Pair:      pair,
							Price:     price,
							Volume24h: f.cfg.Volume24h,
							Liquidity: venue.Liquidity,
							BestBid:   price - half,
							BestAsk:   price + half,
							Timestamp: now,
						}
						select {
						case out <- update:
						case <-ctx.Done():
							return
						}
					}
				}
			}
		}
	}()
	return out, nil
}

// Compile-time interface check.
var _ domain.PriceFeed = (*SimFeed)(nil)
