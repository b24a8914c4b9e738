package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors exported alongside the in-memory tracker. Grafana
// consumes these; callers inside the engine read the tracker snapshot
// instead.

// OpportunitiesDetected counts opportunities entering the table, by kind.
var OpportunitiesDetected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbengine",
		Subsystem: "scanner",
		Name:      "opportunities_detected_total",
		Help:      "Arbitrage opportunities detected, by kind",
	},
	[]string{"kind"},
)

// ScanLatency observes one full simple-scan pass.
var ScanLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "arbengine",
		Subsystem: "scanner",
		Name:      "scan_latency_ms",
		Help:      "Duration of a full simple-scan pass in milliseconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 25, 50},
	},
)

// ExecutionsTotal counts finished executions by terminal status.
var ExecutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbengine",
		Subsystem: "executor",
		Name:      "executions_total",
		Help:      "Arbitrage executions finished, by status",
	},
	[]string{"status"},
)

// RealizedProfit accumulates actual profit in quote currency.
var RealizedProfit = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "arbengine",
		Subsystem: "executor",
		Name:      "realized_profit_usd_total",
		Help:      "Cumulative realized profit in USD",
	},
)

// MarginUsage reports the latest margin-usage ratio per agent.
var MarginUsage = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "arbengine",
		Subsystem: "margin",
		Name:      "usage_ratio",
		Help:      "Margin usage ratio (0..1) per agent",
	},
	[]string{"agent"},
)

// PositionsDelevered counts positions force-closed by the margin monitor.
var PositionsDelevered = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "arbengine",
		Subsystem: "margin",
		Name:      "positions_delevered_total",
		Help:      "Positions auto-closed by the margin monitor",
	},
)
