package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arbstack/arbengine/internal/domain"
	"github.com/arbstack/arbengine/internal/metrics"
	"github.com/arbstack/arbengine/internal/oracle"
	"github.com/arbstack/arbengine/internal/pricebook"
)

// Simple detects two-venue price discrepancies: for every pair quoted on at
// least two venues it pairs the cheapest and most expensive venue and keeps
// the candidate when the spread clears the congestion-adjusted threshold and
// the net profit clears the floor.
type Simple struct {
	book       *pricebook.Book
	gas        oracle.GasEstimator
	congestion oracle.CongestionOracle
	liquidity  oracle.LiquidityOracle
	tracker    *metrics.Tracker
	cfg        Config
	logger     *slog.Logger
}

// NewSimple creates the simple detector.
func NewSimple(book *pricebook.Book, gas oracle.GasEstimator, congestion oracle.CongestionOracle, liquidity oracle.LiquidityOracle, tracker *metrics.Tracker, cfg Config, logger *slog.Logger) *Simple {
	return &Simple{
		book:       book,
		gas:        gas,
		congestion: congestion,
		liquidity:  liquidity,
		tracker:    tracker,
		cfg:        cfg,
		logger:     logger.With(slog.String("detector", "simple")),
	}
}

// Name returns the detector identifier.
func (s *Simple) Name() string { return "simple" }

// Kind returns the opportunity kind this detector emits.
func (s *Simple) Kind() domain.OpportunityKind { return domain.OpportunitySimple }

// Interval returns the target scan cadence.
func (s *Simple) Interval() time.Duration { return s.cfg.SimpleInterval }

// Scan walks every tracked pair and emits candidates. The latency of each
// full pass is recorded.
func (s *Simple) Scan(ctx context.Context) ([]domain.Opportunity, error) {
	started := time.Now()
	defer func() {
		if s.tracker != nil {
			s.tracker.RecordScanLatency(time.Since(started))
		}
	}()

	congestion, err := s.congestion.Congestion(ctx)
	if err != nil {
		// Conservative fallback: treat the network as congested so the
		// wider spread threshold applies.
		s.logger.WarnContext(ctx, "congestion oracle failed, assuming congested",
			slog.String("error", err.Error()))
		congestion = 1.0
	}
	threshold := s.cfg.SpreadThresholdLowPct
	if congestion > s.cfg.HighCongestionCutoff {
		threshold = s.cfg.SpreadThresholdHighPct
	}

	var opps []domain.Opportunity
	for pair, agg := range s.book.Snapshot() {
		if agg.VenueCount < 2 {
			continue
		}
		opp, ok := s.evaluatePair(ctx, pair, agg, threshold, congestion)
		if !ok {
			continue
		}
		opps = append(opps, opp)
	}
	return opps, nil
}

func (s *Simple) evaluatePair(ctx context.Context, pair string, agg domain.AggregatedPrice, thresholdPct, congestion float64) (domain.Opportunity, bool) {
	var low, high domain.PriceUpdate
	for _, u := range agg.Venues {
		if low.Venue == "" || u.Price < low.Price {
			low = u
		}
		if high.Venue == "" || u.Price > high.Price {
			high = u
		}
	}
	if low.Venue == high.Venue || low.Price <= 0 {
		return domain.Opportunity{}, false
	}

	spreadPct := (high.Price - low.Price) / low.Price * 100
	if spreadPct < thresholdPct {
		return domain.Opportunity{}, false
	}

	gasPrice, err := s.gas.GasPrice(ctx, low.Chain)
	if err != nil {
		s.logger.WarnContext(ctx, "gas oracle failed, skipping pair",
			slog.String("pair", pair), slog.String("error", err.Error()))
		return domain.Opportunity{}, false
	}

	gross := s.cfg.Notional * spreadPct / 100
	gasCost := s.cfg.gasCostUSD(s.cfg.BaseGasUnits+2*s.cfg.SwapGasUnits, gasPrice)
	slippage := s.cfg.slippageCostUSD()
	net := gross - gasCost - slippage
	if net < s.cfg.MinProfitUSD {
		return domain.Opportunity{}, false
	}

	liqScore := (s.liquidity.VenueLiquidity(low.Venue) + s.liquidity.VenueLiquidity(high.Venue)) / 2
	confidence := clamp01(0.5 + spreadPct*0.5 - congestion*0.2)
	amount := s.cfg.Notional / low.Price
	now := time.Now().UTC()

	var riskFactors []string
	if congestion > 0.5 {
		riskFactors = append(riskFactors, "high_congestion")
	}
	if liqScore < 0.5 {
		riskFactors = append(riskFactors, "low_liquidity")
	}

	opp := domain.Opportunity{
		ID:              uuid.New().String(),
		Kind:            domain.OpportunitySimple,
		Pair:            pair,
		BuyVenue:        low.Venue,
		BuyChain:        low.Chain,
		SellVenue:       high.Venue,
		SellChain:       high.Chain,
		BuyPrice:        low.Price,
		SellPrice:       high.Price,
		SpreadPct:       spreadPct,
		ProfitEstimate:  gross,
		RequiredCapital: s.cfg.Notional,
		GasCostEstimate: gasCost,
		SlippageCost:    slippage,
		NetProfit:       net,
		Confidence:      confidence,
		LiquidityScore:  liqScore,
		EstExecution:    30 * time.Second,
		DetectedAt:      now,
		ValidUntil:      now.Add(s.cfg.SimpleValidity),
		Status:          domain.OpportunityDetected,
		Legs: []domain.ExecutionLeg{
			{Venue: low.Venue, Chain: low.Chain, Pair: pair, Side: domain.OrderSideBuy, Price: low.Price, Amount: amount},
			{Venue: high.Venue, Chain: high.Chain, Pair: pair, Side: domain.OrderSideSell, Price: high.Price, Amount: amount},
		},
		RiskFactors: riskFactors,
	}
	s.logger.DebugContext(ctx, "simple opportunity detected",
		slog.String("pair", pair),
		slog.Float64("spread_pct", spreadPct),
		slog.Float64("net_profit", net),
	)
	return opp, true
}
