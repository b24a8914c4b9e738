package leverage

import (
	"context"
	"testing"

	"github.com/arbstack/arbengine/internal/agent"
	"github.com/arbstack/arbengine/internal/domain"
)

func newTestMonitor(totalMargin float64) (*Monitor, *Manager) {
	reg := agent.NewStaticRegistry([]domain.Agent{
		{ID: "a", RiskProfile: domain.RiskAggressive, TotalMargin: totalMargin},
	})
	m := NewManager(reg, nil, Defaults(), testLogger())
	return NewMonitor(m, reg, MonitorDefaults(), testLogger()), m
}

func openPos(t *testing.T, m *Manager, asset string, size, entry, lev float64) string {
	t.Helper()
	receipt, err := m.ExecutePosition(context.Background(), "a", domain.PositionSpec{
		Asset:      asset,
		Side:       domain.PositionLong,
		Size:       size,
		EntryPrice: entry,
		Leverage:   lev,
	}, domain.MarketConditions{Volatility: 0, Sentiment: domain.SentimentBullish})
	if err != nil {
		t.Fatalf("open %s: %v", asset, err)
	}
	return receipt.PositionID
}

func TestEvaluateBands(t *testing.T) {
	tests := []struct {
		name string
		size float64 // notional at 10x, so margin = size/10
		want domain.MarginStatus
	}{
		{"safe", 30_000, domain.MarginSafe},          // usage 0.30
		{"warning", 60_000, domain.MarginWarning},    // usage 0.60
		{"critical", 85_000, domain.MarginCritical},  // usage 0.85
		{"liquidation", 97_000, domain.MarginLiquidation}, // usage 0.97
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mo, m := newTestMonitor(10_000)
			openPos(t, m, "ETH", tt.size, 2000, 10)

			got, err := mo.Evaluate(context.Background(), "a")
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEvaluateUnknownAgentIsCritical(t *testing.T) {
	mo, _ := newTestMonitor(10_000)
	got, err := mo.Evaluate(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error for unknown agent")
	}
	if got != domain.MarginCritical {
		t.Errorf("Evaluate = %s, want critical fallback", got)
	}
}

func TestAutoDeleverBelowThresholdIsNoop(t *testing.T) {
	mo, m := newTestMonitor(10_000)
	openPos(t, m, "ETH", 60_000, 2000, 10) // usage 0.60

	closed, err := mo.AutoDelever(context.Background(), "a")
	if err != nil {
		t.Fatalf("AutoDelever: %v", err)
	}
	if len(closed) != 0 {
		t.Errorf("closed %v below threshold, want none", closed)
	}
	if len(m.OpenPositions("a")) != 1 {
		t.Error("position closed below threshold")
	}
}

func TestAutoDeleverClosesWorstFirst(t *testing.T) {
	mo, m := newTestMonitor(10_000)
	worst := openPos(t, m, "ETH", 50_000, 2000, 10) // margin 5000
	keeper := openPos(t, m, "BTC", 40_000, 40_000, 10) // margin 4000, usage 0.90

	m.UpdatePrice("ETH", 1994)   // -0.3% on 50k notional: -150
	m.UpdatePrice("BTC", 40_100) // +0.25% on 40k notional: +100

	closed, err := mo.AutoDelever(context.Background(), "a")
	if err != nil {
		t.Fatalf("AutoDelever: %v", err)
	}
	// Closing the ETH position alone drops usage to 0.40, which is safe,
	// so the profitable BTC position survives.
	if len(closed) != 1 || closed[0] != worst {
		t.Fatalf("closed = %v, want [%s]", closed, worst)
	}

	open := m.OpenPositions("a")
	if len(open) != 1 || open[0].ID != keeper {
		t.Errorf("open positions = %v, want only %s", open, keeper)
	}
}

func TestRunOnceDeleverOnCritical(t *testing.T) {
	mo, m := newTestMonitor(10_000)
	openPos(t, m, "ETH", 45_000, 2000, 10)
	openPos(t, m, "BTC", 45_000, 40_000, 10) // usage 0.90

	mo.RunOnce(context.Background())

	if got := len(m.OpenPositions("a")); got != 1 {
		t.Errorf("open positions after sweep = %d, want 1", got)
	}
}
