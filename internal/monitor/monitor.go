// Package monitor offers an optional live progress view over a run still
// in flight: atomic counters plus an HdrHistogram for approximate
// percentiles, safe to poll from the CLI on a ticker while dispatch is
// still producing AttemptRecords. It is distinct from internal/aggregator,
// which computes PerfSummary's exact linear-interpolated percentiles once
// a run has fully completed.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/arrowcurve/loadctl/pkg/spec"
)

// Monitor accumulates AttemptRecords under atomic counters and a
// mutex-guarded histogram, the same split the teacher's stats.Monitor
// uses to keep the hot path lock-free outside of histogram updates.
type Monitor struct {
	requests int64
	success  int64
	fail     int64

	statusCodes sync.Map // map[int]int64

	mu        sync.Mutex
	histogram *hdrhistogram.Histogram

	startTime time.Time
}

// New builds a Monitor tracking latencies from 1µs to 30s at 3
// significant figures, matching the teacher's histogram bounds.
func New() *Monitor {
	return &Monitor{
		startTime: time.Now(),
		histogram: hdrhistogram.New(1, 30_000_000, 3),
	}
}

// Add records one completed attempt.
func (m *Monitor) Add(rec spec.AttemptRecord) {
	atomic.AddInt64(&m.requests, 1)
	if rec.Passed {
		atomic.AddInt64(&m.success, 1)
	} else {
		atomic.AddInt64(&m.fail, 1)
	}

	count, _ := m.statusCodes.LoadOrStore(rec.Status, new(int64))
	atomic.AddInt64(count.(*int64), 1)

	m.mu.Lock()
	_ = m.histogram.RecordValue(int64(rec.ElapsedMS * 1000))
	m.mu.Unlock()
}

// Snapshot is a point-in-time view of a run still in progress.
type Snapshot struct {
	Requests    int64
	Success     int64
	Fail        int64
	RPS         float64
	P50         time.Duration
	P90         time.Duration
	P95         time.Duration
	P99         time.Duration
	StatusCodes map[int]int64
}

// Snapshot computes the current view. Safe to call concurrently with Add.
func (m *Monitor) Snapshot() Snapshot {
	reqs := atomic.LoadInt64(&m.requests)
	succ := atomic.LoadInt64(&m.success)
	fail := atomic.LoadInt64(&m.fail)

	duration := time.Since(m.startTime).Seconds()
	var rps float64
	if duration > 0 {
		rps = float64(reqs) / duration
	}

	m.mu.Lock()
	h := m.histogram
	p50 := time.Duration(h.ValueAtQuantile(50)) * time.Microsecond
	p90 := time.Duration(h.ValueAtQuantile(90)) * time.Microsecond
	p95 := time.Duration(h.ValueAtQuantile(95)) * time.Microsecond
	p99 := time.Duration(h.ValueAtQuantile(99)) * time.Microsecond
	m.mu.Unlock()

	statusMap := make(map[int]int64)
	m.statusCodes.Range(func(key, value any) bool {
		statusMap[key.(int)] = atomic.LoadInt64(value.(*int64))
		return true
	})

	return Snapshot{
		Requests:    reqs,
		Success:     succ,
		Fail:        fail,
		RPS:         rps,
		P50:         p50,
		P90:         p90,
		P95:         p95,
		P99:         p99,
		StatusCodes: statusMap,
	}
}
