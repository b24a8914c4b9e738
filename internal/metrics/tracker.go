// Package metrics aggregates detection and execution counters plus
// scan-latency percentiles, and exports the same signals as Prometheus
// collectors.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// latencyWindow bounds the number of scan-latency samples kept for
// percentile computation.
const latencyWindow = 2048

// Performance is a point-in-time snapshot of engine counters. Returned by
// value so callers can hold it without locking.
type Performance struct {
	Detected         int64
	Executed         int64
	Failed           int64
	TotalProfit      float64
	SuccessRate      float64 // executed / (executed + failed)
	AvgExecutionTime time.Duration
	ScanLatencyP50   time.Duration
	ScanLatencyP95   time.Duration
	ScanLatencyP99   time.Duration
}

// Tracker accumulates counters from all pipeline stages. Safe for
// concurrent use.
type Tracker struct {
	mu sync.Mutex

	detected    int64
	executed    int64
	failed      int64
	totalProfit float64

	execTimeSum   time.Duration
	execTimeCount int64

	latencies []time.Duration
	latIdx    int
	latFull   bool
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{latencies: make([]time.Duration, latencyWindow)}
}

// OpportunityDetected records one opportunity entering the table.
func (t *Tracker) OpportunityDetected(kind string) {
	t.mu.Lock()
	t.detected++
	t.mu.Unlock()
	OpportunitiesDetected.WithLabelValues(kind).Inc()
}

// ExecutionCompleted records a successful execution with its realized profit
// and wall-clock duration.
func (t *Tracker) ExecutionCompleted(profit float64, took time.Duration) {
	t.mu.Lock()
	t.executed++
	t.totalProfit += profit
	t.execTimeSum += took
	t.execTimeCount++
	t.mu.Unlock()
	ExecutionsTotal.WithLabelValues("completed").Inc()
	if profit > 0 {
		RealizedProfit.Add(profit)
	}
}

// ExecutionFailed records a failed execution.
func (t *Tracker) ExecutionFailed() {
	t.mu.Lock()
	t.failed++
	t.mu.Unlock()
	ExecutionsTotal.WithLabelValues("failed").Inc()
}

// RecordScanLatency records the duration of one simple-scan pass.
func (t *Tracker) RecordScanLatency(d time.Duration) {
	t.mu.Lock()
	t.latencies[t.latIdx] = d
	t.latIdx++
	if t.latIdx == len(t.latencies) {
		t.latIdx = 0
		t.latFull = true
	}
	t.mu.Unlock()
	ScanLatency.Observe(float64(d) / float64(time.Millisecond))
}

// Snapshot returns the current performance counters.
func (t *Tracker) Snapshot() Performance {
	t.mu.Lock()
	defer t.mu.Unlock()

	perf := Performance{
		Detected:    t.detected,
		Executed:    t.executed,
		Failed:      t.failed,
		TotalProfit: t.totalProfit,
	}
	if total := t.executed + t.failed; total > 0 {
		perf.SuccessRate = float64(t.executed) / float64(total)
	}
	if t.execTimeCount > 0 {
		perf.AvgExecutionTime = t.execTimeSum / time.Duration(t.execTimeCount)
	}

	samples := t.latIdx
	if t.latFull {
		samples = len(t.latencies)
	}
	if samples > 0 {
		sorted := make([]time.Duration, samples)
		copy(sorted, t.latencies[:samples])
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		perf.ScanLatencyP50 = percentile(sorted, 0.50)
		perf.ScanLatencyP95 = percentile(sorted, 0.95)
		perf.ScanLatencyP99 = percentile(sorted, 0.99)
	}
	return perf
}

// percentile picks the nearest-rank percentile from an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
