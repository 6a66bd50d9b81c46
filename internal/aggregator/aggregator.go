// Package aggregator reduces a completed performance run's AttemptRecords
// into a PerfSummary: counts, latency statistics, throughput, retries, and
// linear-interpolated percentiles. It is pure computation over an already
// materialized slice — ordering, streaming, and concurrency all belong to
// internal/dispatch.
package aggregator

import (
	"sort"
	"strconv"

	"github.com/arrowcurve/loadctl/pkg/spec"
)

// Summarize reduces recs into a PerfSummary. wallTimeSec is the dispatcher's
// measured wall-clock duration for the whole run (used by RPSWall); perf
// supplies the RPS mode, latency threshold and requested percentiles (nil
// means wall-mode RPS and neither of the others). Total is len(recs), which
// may be less than perf.Repeat when a CircuitBreaker or cancellation
// stopped the run early.
func Summarize(recs []spec.AttemptRecord, perf *spec.PerformanceSpec, wallTimeSec float64) spec.PerfSummary {
	total := len(recs)
	summary := spec.PerfSummary{Total: total}
	if total == 0 {
		return summary
	}

	elapsed := make([]float64, total)
	var sumMS float64
	var totalRetries int
	minMS, maxMS := recs[0].ElapsedMS, recs[0].ElapsedMS

	for i, rec := range recs {
		elapsed[i] = rec.ElapsedMS
		sumMS += rec.ElapsedMS
		totalRetries += rec.Retries
		if rec.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
		if rec.ElapsedMS < minMS {
			minMS = rec.ElapsedMS
		}
		if rec.ElapsedMS > maxMS {
			maxMS = rec.ElapsedMS
		}
	}

	avgMS := sumMS / float64(total)
	summary.MinMS = minMS
	summary.MaxMS = maxMS
	summary.AvgMS = avgMS
	summary.WallTimeSec = wallTimeSec
	summary.TotalRetries = totalRetries
	summary.AvgRetriesPerRequest = float64(totalRetries) / float64(total)

	summary.RPS = computeRPS(perf, total, avgMS, wallTimeSec)

	if perf != nil && perf.ThresholdMS > 0 {
		exceeded := 0
		for _, ms := range elapsed {
			if ms > perf.ThresholdMS {
				exceeded++
			}
		}
		summary.ThresholdExceeded = &exceeded
	}

	if perf != nil && len(perf.Percentiles) > 0 {
		sorted := append([]float64(nil), elapsed...)
		sort.Float64s(sorted)
		summary.Percentiles = make(map[string]float64, len(perf.Percentiles))
		for _, p := range perf.Percentiles {
			summary.Percentiles[percentileKey(p)] = percentile(sorted, float64(p))
		}
	}

	return summary
}

// computeRPS mirrors pyresttest's two rps_mode branches: RPSResponse is the
// reciprocal of average response time; RPSWall (the default) is total
// requests over wall-clock dispatch time.
func computeRPS(perf *spec.PerformanceSpec, total int, avgMS, wallTimeSec float64) float64 {
	mode := spec.RPSWall
	if perf != nil && perf.RPSMode != "" {
		mode = perf.RPSMode
	}
	if mode == spec.RPSResponse {
		if avgMS > 0 {
			return 1000.0 / avgMS
		}
		return 0
	}
	if wallTimeSec > 0 {
		return float64(total) / wallTimeSec
	}
	return 0
}

// percentile linearly interpolates p (0-100) over already-sorted values,
// matching pyresttest's _percentile helper exactly.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	k := float64(len(sorted)-1) * (p / 100.0)
	f := int(k)
	c := f + 1
	if c > len(sorted)-1 {
		c = len(sorted) - 1
	}
	if f == c {
		return sorted[f]
	}
	d0 := sorted[f] * (float64(c) - k)
	d1 := sorted[c] * (k - float64(f))
	return d0 + d1
}

func percentileKey(p int) string {
	return "p" + strconv.Itoa(p)
}
