package aggregator

import (
	"math"
	"testing"

	"github.com/arrowcurve/loadctl/pkg/spec"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, nil, 0)
	if s.Total != 0 || s.Passed != 0 || s.Failed != 0 {
		t.Fatalf("unexpected summary for empty input: %+v", s)
	}
}

func TestSummarizeCountsAndLatency(t *testing.T) {
	recs := []spec.AttemptRecord{
		{Status: 200, ElapsedMS: 10, Passed: true, Retries: 1},
		{Status: 200, ElapsedMS: 20, Passed: true, Retries: 0},
		{Status: 500, ElapsedMS: 30, Passed: false, Retries: 2},
	}
	s := Summarize(recs, &spec.PerformanceSpec{}, 3)

	if s.Total != 3 || s.Passed != 2 || s.Failed != 1 {
		t.Fatalf("counts wrong: %+v", s)
	}
	if !approxEqual(s.MinMS, 10) || !approxEqual(s.MaxMS, 30) || !approxEqual(s.AvgMS, 20) {
		t.Fatalf("latency stats wrong: %+v", s)
	}
	if s.TotalRetries != 3 {
		t.Errorf("TotalRetries = %d, want 3", s.TotalRetries)
	}
	if !approxEqual(s.AvgRetriesPerRequest, 1) {
		t.Errorf("AvgRetriesPerRequest = %v, want 1", s.AvgRetriesPerRequest)
	}
}

func TestSummarizeRPSWallMode(t *testing.T) {
	recs := []spec.AttemptRecord{{ElapsedMS: 100, Passed: true}, {ElapsedMS: 100, Passed: true}}
	s := Summarize(recs, &spec.PerformanceSpec{RPSMode: spec.RPSWall}, 2.0)
	if !approxEqual(s.RPS, 1.0) {
		t.Errorf("RPS = %v, want 1.0 (2 requests / 2 sec)", s.RPS)
	}
}

func TestSummarizeRPSResponseMode(t *testing.T) {
	recs := []spec.AttemptRecord{{ElapsedMS: 100, Passed: true}, {ElapsedMS: 100, Passed: true}}
	s := Summarize(recs, &spec.PerformanceSpec{RPSMode: spec.RPSResponse}, 2.0)
	if !approxEqual(s.RPS, 10.0) {
		t.Errorf("RPS = %v, want 10.0 (1000/avg_ms with avg_ms=100)", s.RPS)
	}
}

func TestSummarizeThresholdExceeded(t *testing.T) {
	recs := []spec.AttemptRecord{{ElapsedMS: 50, Passed: true}, {ElapsedMS: 150, Passed: true}, {ElapsedMS: 250, Passed: true}}
	s := Summarize(recs, &spec.PerformanceSpec{ThresholdMS: 100}, 1)
	if s.ThresholdExceeded == nil {
		t.Fatal("expected ThresholdExceeded to be set")
	}
	if *s.ThresholdExceeded != 2 {
		t.Errorf("ThresholdExceeded = %d, want 2", *s.ThresholdExceeded)
	}
}

func TestSummarizeThresholdUnsetWhenNoThreshold(t *testing.T) {
	recs := []spec.AttemptRecord{{ElapsedMS: 50, Passed: true}}
	s := Summarize(recs, &spec.PerformanceSpec{}, 1)
	if s.ThresholdExceeded != nil {
		t.Errorf("ThresholdExceeded = %v, want nil when threshold_ms unset", s.ThresholdExceeded)
	}
}

func TestSummarizePercentilesLinearInterpolation(t *testing.T) {
	recs := make([]spec.AttemptRecord, 0, 11)
	for i := 0; i <= 10; i++ {
		recs = append(recs, spec.AttemptRecord{ElapsedMS: float64(i * 10), Passed: true})
	}
	s := Summarize(recs, &spec.PerformanceSpec{Percentiles: []int{50, 100}}, 1)

	if got, want := s.Percentiles["p50"], 50.0; !approxEqual(got, want) {
		t.Errorf("p50 = %v, want %v", got, want)
	}
	if got, want := s.Percentiles["p100"], 100.0; !approxEqual(got, want) {
		t.Errorf("p100 = %v, want %v", got, want)
	}
}

func TestSummarizeMonotonicPercentiles(t *testing.T) {
	recs := []spec.AttemptRecord{
		{ElapsedMS: 5, Passed: true}, {ElapsedMS: 40, Passed: true}, {ElapsedMS: 12, Passed: true},
		{ElapsedMS: 98, Passed: true}, {ElapsedMS: 1, Passed: true},
	}
	s := Summarize(recs, &spec.PerformanceSpec{Percentiles: []int{50, 90, 95, 99}}, 1)

	order := []string{"p50", "p90", "p95", "p99"}
	for i := 1; i < len(order); i++ {
		if s.Percentiles[order[i]] < s.Percentiles[order[i-1]] {
			t.Errorf("%s = %v < %s = %v, want non-decreasing", order[i], s.Percentiles[order[i]], order[i-1], s.Percentiles[order[i-1]])
		}
	}
}

func TestSummarizeInvariantPassedPlusFailedEqualsTotal(t *testing.T) {
	recs := []spec.AttemptRecord{
		{Passed: true}, {Passed: false}, {Passed: true}, {Passed: false}, {Passed: false},
	}
	s := Summarize(recs, &spec.PerformanceSpec{}, 1)
	if s.Passed+s.Failed != s.Total {
		t.Errorf("Passed(%d) + Failed(%d) != Total(%d)", s.Passed, s.Failed, s.Total)
	}
}
