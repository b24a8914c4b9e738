package leverage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/arbstack/arbengine/internal/agent"
	"github.com/arbstack/arbengine/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(agents ...domain.Agent) *Manager {
	return NewManager(agent.NewStaticRegistry(agents), nil, Defaults(), testLogger())
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestMaxLeverage(t *testing.T) {
	tests := []struct {
		name    string
		profile domain.RiskProfile
		cond    domain.MarketConditions
		want    float64
	}{
		{
			name:    "moderate neutral with volatility",
			profile: domain.RiskModerate,
			cond:    domain.MarketConditions{Volatility: 0.02, Sentiment: domain.SentimentNeutral},
			want:    6.0, // 10 * (1 - 0.02*20)
		},
		{
			name:    "conservative bullish calm",
			profile: domain.RiskConservative,
			cond:    domain.MarketConditions{Volatility: 0.005, Sentiment: domain.SentimentBullish},
			want:    3.24, // 3 * 0.9 * 1.2
		},
		{
			name:    "aggressive bearish hits volatility floor",
			profile: domain.RiskAggressive,
			cond:    domain.MarketConditions{Volatility: 0.05, Sentiment: domain.SentimentBearish},
			want:    4.2, // 20 * 0.3 * 0.7
		},
		{
			name:    "aggressive bullish clamps at ceiling",
			profile: domain.RiskAggressive,
			cond:    domain.MarketConditions{Volatility: 0, Sentiment: domain.SentimentBullish},
			want:    20.0, // 24 clamped
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(domain.Agent{ID: "a", RiskProfile: tt.profile, TotalMargin: 100_000})
			got, err := m.MaxLeverage(context.Background(), "a", tt.cond)
			if err != nil {
				t.Fatalf("MaxLeverage: %v", err)
			}
			if !approx(got, tt.want) {
				t.Errorf("MaxLeverage = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaxLeverageUnknownAgentIsConservative(t *testing.T) {
	m := newTestManager()
	got, err := m.MaxLeverage(context.Background(), "ghost", domain.MarketConditions{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got != 1.0 {
		t.Errorf("fallback leverage = %v, want 1.0", got)
	}
}

func TestExecutePositionLiquidationPrice(t *testing.T) {
	calm := domain.MarketConditions{Volatility: 0, Sentiment: domain.SentimentNeutral}

	tests := []struct {
		name string
		side domain.PositionSide
		want float64
	}{
		{"long", domain.PositionLong, 2000 * (1 - 0.1 + 0.05)},   // 1900
		{"short", domain.PositionShort, 2000 * (1 + 0.1 - 0.05)}, // 2100
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(domain.Agent{ID: "a", RiskProfile: domain.RiskAggressive, TotalMargin: 100_000})
			receipt, err := m.ExecutePosition(context.Background(), "a", domain.PositionSpec{
				Asset:      "ETH",
				Side:       tt.side,
				Size:       20_000,
				EntryPrice: 2000,
				Leverage:   10,
			}, calm)
			if err != nil {
				t.Fatalf("ExecutePosition: %v", err)
			}
			if !approx(receipt.LiquidationPrice, tt.want) {
				t.Errorf("LiquidationPrice = %v, want %v", receipt.LiquidationPrice, tt.want)
			}
			if !approx(receipt.MarginUsed, 2000) {
				t.Errorf("MarginUsed = %v, want 2000", receipt.MarginUsed)
			}
		})
	}
}

func TestExecutePositionRejectsExcessLeverage(t *testing.T) {
	m := newTestManager(domain.Agent{ID: "a", RiskProfile: domain.RiskModerate, TotalMargin: 100_000})
	// Volatility 0.02 caps the moderate profile at 6x.
	_, err := m.ExecutePosition(context.Background(), "a", domain.PositionSpec{
		Asset:      "ETH",
		Side:       domain.PositionLong,
		Size:       10_000,
		EntryPrice: 2000,
		Leverage:   8,
	}, domain.MarketConditions{Volatility: 0.02, Sentiment: domain.SentimentNeutral})
	if !errors.Is(err, domain.ErrLeverageExceeded) {
		t.Fatalf("err = %v, want ErrLeverageExceeded", err)
	}
}

func TestExecutePositionRejectsInsufficientMargin(t *testing.T) {
	m := newTestManager(domain.Agent{ID: "a", RiskProfile: domain.RiskModerate, TotalMargin: 10_000})
	// 60k at 5x needs 12k margin against a 10k account.
	_, err := m.ExecutePosition(context.Background(), "a", domain.PositionSpec{
		Asset:      "ETH",
		Side:       domain.PositionLong,
		Size:       60_000,
		EntryPrice: 2000,
		Leverage:   5,
	}, domain.MarketConditions{Volatility: 0.005, Sentiment: domain.SentimentNeutral})
	if !errors.Is(err, domain.ErrInsufficientMargin) {
		t.Fatalf("err = %v, want ErrInsufficientMargin", err)
	}
}

func TestExecutePositionRejectsInvalidSpec(t *testing.T) {
	m := newTestManager(domain.Agent{ID: "a", RiskProfile: domain.RiskModerate, TotalMargin: 100_000})
	calm := domain.MarketConditions{Sentiment: domain.SentimentNeutral}

	tests := []struct {
		name string
		spec domain.PositionSpec
	}{
		{"zero size", domain.PositionSpec{Asset: "ETH", Side: domain.PositionLong, EntryPrice: 2000, Leverage: 2}},
		{"zero entry", domain.PositionSpec{Asset: "ETH", Side: domain.PositionLong, Size: 1000, Leverage: 2}},
		{"bad side", domain.PositionSpec{Asset: "ETH", Side: "sideways", Size: 1000, EntryPrice: 2000, Leverage: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ExecutePosition(context.Background(), "a", tt.spec, calm)
			if !errors.Is(err, domain.ErrInvalidPosition) {
				t.Fatalf("err = %v, want ErrInvalidPosition", err)
			}
		})
	}
}

func TestUpdatePriceMarksUnrealizedPnL(t *testing.T) {
	m := newTestManager(domain.Agent{ID: "a", RiskProfile: domain.RiskAggressive, TotalMargin: 100_000})
	calm := domain.MarketConditions{Sentiment: domain.SentimentNeutral}

	if _, err := m.ExecutePosition(context.Background(), "a", domain.PositionSpec{
		Asset: "ETH", Side: domain.PositionLong, Size: 10_000, EntryPrice: 2000, Leverage: 5,
	}, calm); err != nil {
		t.Fatalf("long: %v", err)
	}
	if _, err := m.ExecutePosition(context.Background(), "a", domain.PositionSpec{
		Asset: "ETH", Side: domain.PositionShort, Size: 10_000, EntryPrice: 2000, Leverage: 5,
	}, calm); err != nil {
		t.Fatalf("short: %v", err)
	}

	m.UpdatePrice("ETH", 2100) // +5%

	for _, pos := range m.OpenPositions("a") {
		want := 500.0
		if pos.Side == domain.PositionShort {
			want = -500.0
		}
		if !approx(pos.UnrealizedPnL, want) {
			t.Errorf("%s UnrealizedPnL = %v, want %v", pos.Side, pos.UnrealizedPnL, want)
		}
	}
}

func TestClosePositionFreesMargin(t *testing.T) {
	m := newTestManager(domain.Agent{ID: "a", RiskProfile: domain.RiskAggressive, TotalMargin: 100_000})
	calm := domain.MarketConditions{Sentiment: domain.SentimentNeutral}

	receipt, err := m.ExecutePosition(context.Background(), "a", domain.PositionSpec{
		Asset: "ETH", Side: domain.PositionLong, Size: 10_000, EntryPrice: 2000, Leverage: 5,
	}, calm)
	if err != nil {
		t.Fatalf("ExecutePosition: %v", err)
	}
	if m.MarginUsed("a") != 2000 {
		t.Fatalf("MarginUsed = %v, want 2000", m.MarginUsed("a"))
	}

	if err := m.ClosePosition(context.Background(), receipt.PositionID); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if m.MarginUsed("a") != 0 {
		t.Errorf("MarginUsed = %v after close, want 0", m.MarginUsed("a"))
	}
	if len(m.OpenPositions("a")) != 0 {
		t.Error("position still listed open after close")
	}

	// Closing again is a no-op.
	if err := m.ClosePosition(context.Background(), receipt.PositionID); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestRiskMetrics(t *testing.T) {
	m := newTestManager(domain.Agent{ID: "a", RiskProfile: domain.RiskAggressive, TotalMargin: 10_000})
	calm := domain.MarketConditions{Sentiment: domain.SentimentNeutral}

	if _, err := m.ExecutePosition(context.Background(), "a", domain.PositionSpec{
		Asset: "ETH", Side: domain.PositionLong, Size: 20_000, EntryPrice: 2000, Leverage: 10,
	}, calm); err != nil {
		t.Fatalf("ExecutePosition: %v", err)
	}
	if _, err := m.ExecutePosition(context.Background(), "a", domain.PositionSpec{
		Asset: "BTC", Side: domain.PositionLong, Size: 10_000, EntryPrice: 40_000, Leverage: 5,
	}, calm); err != nil {
		t.Fatalf("ExecutePosition: %v", err)
	}

	got, err := m.RiskMetrics(context.Background(), "a")
	if err != nil {
		t.Fatalf("RiskMetrics: %v", err)
	}

	// Margins: 2000 + 2000 = 4000 of 10000.
	if !approx(got.MarginUsagePct, 40) {
		t.Errorf("MarginUsagePct = %v, want 40", got.MarginUsagePct)
	}
	if got.Tier != domain.RiskTierLow {
		t.Errorf("Tier = %s, want low", got.Tier)
	}
	if got.OpenPositions != 2 {
		t.Errorf("OpenPositions = %d, want 2", got.OpenPositions)
	}
	// (10*20000 + 5*10000) / 30000
	if !approx(got.PortfolioLeverage, 250_000.0/30_000.0) {
		t.Errorf("PortfolioLeverage = %v", got.PortfolioLeverage)
	}
	if !approx(got.ValueAtRisk, 30_000*0.05) {
		t.Errorf("ValueAtRisk = %v, want 1500", got.ValueAtRisk)
	}
}

func TestRiskMetricsUnknownAgentIsConservative(t *testing.T) {
	m := newTestManager()
	got, err := m.RiskMetrics(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error for unknown agent")
	}
	if got.MarginUsagePct != 100 || got.Tier != domain.RiskTierHigh {
		t.Errorf("fallback metrics = %+v, want full-risk reading", got)
	}
}
