package metrics

import (
	"testing"
	"time"
)

func TestSnapshotCounters(t *testing.T) {
	tr := NewTracker()

	tr.OpportunityDetected("simple")
	tr.OpportunityDetected("triangular")
	tr.OpportunityDetected("simple")
	tr.ExecutionCompleted(40, 100*time.Millisecond)
	tr.ExecutionCompleted(20, 300*time.Millisecond)
	tr.ExecutionFailed()

	perf := tr.Snapshot()
	if perf.Detected != 3 {
		t.Errorf("Detected = %d, want 3", perf.Detected)
	}
	if perf.Executed != 2 || perf.Failed != 1 {
		t.Errorf("Executed/Failed = %d/%d, want 2/1", perf.Executed, perf.Failed)
	}
	if perf.TotalProfit != 60 {
		t.Errorf("TotalProfit = %v, want 60", perf.TotalProfit)
	}
	if want := 2.0 / 3.0; perf.SuccessRate != want {
		t.Errorf("SuccessRate = %v, want %v", perf.SuccessRate, want)
	}
	if perf.AvgExecutionTime != 200*time.Millisecond {
		t.Errorf("AvgExecutionTime = %v, want 200ms", perf.AvgExecutionTime)
	}
}

func TestSnapshotEmptyTracker(t *testing.T) {
	perf := NewTracker().Snapshot()
	if perf.SuccessRate != 0 || perf.AvgExecutionTime != 0 || perf.ScanLatencyP50 != 0 {
		t.Errorf("empty snapshot not zero: %+v", perf)
	}
}

func TestScanLatencyPercentiles(t *testing.T) {
	tr := NewTracker()
	for i := 1; i <= 100; i++ {
		tr.RecordScanLatency(time.Duration(i) * time.Millisecond)
	}

	perf := tr.Snapshot()
	if perf.ScanLatencyP50 != 50*time.Millisecond {
		t.Errorf("P50 = %v, want 50ms", perf.ScanLatencyP50)
	}
	if perf.ScanLatencyP95 != 95*time.Millisecond {
		t.Errorf("P95 = %v, want 95ms", perf.ScanLatencyP95)
	}
	if perf.ScanLatencyP99 != 99*time.Millisecond {
		t.Errorf("P99 = %v, want 99ms", perf.ScanLatencyP99)
	}
}

func TestScanLatencyWindowWraps(t *testing.T) {
	tr := NewTracker()
	// Fill the whole ring with high samples, then overwrite it with low ones.
	for i := 0; i < latencyWindow; i++ {
		tr.RecordScanLatency(time.Second)
	}
	for i := 0; i < latencyWindow; i++ {
		tr.RecordScanLatency(time.Millisecond)
	}

	perf := tr.Snapshot()
	if perf.ScanLatencyP99 != time.Millisecond {
		t.Errorf("P99 = %v after wrap, want 1ms", perf.ScanLatencyP99)
	}
}
