// Package dispatch fans a PerformanceSpec's Repeat executions of one
// TestSpec out across two interchangeable strategies: parallel-workers (a
// fixed goroutine pool, each blocking on I/O) and cooperative-async (a
// single gated scheduler where every suspension point yields explicitly).
// Both satisfy the Dispatcher contract in spec.md §4.4 identically: the
// dispatcher a run picks must not change the attempt outcomes it produces,
// only the concurrency strategy used to produce them.
package dispatch

import (
	"context"

	"github.com/arrowcurve/loadctl/internal/executor"
	"github.com/arrowcurve/loadctl/pkg/spec"
)

// Breaker is consulted by a dispatcher after every completed attempt. A
// dispatcher stops issuing new attempts once Tripped reports true, but
// lets attempts already in flight finish. internal/circuitbreaker.Breaker
// satisfies this.
type Breaker interface {
	Record(rec spec.AttemptRecord)
	Tripped() bool
	Reason() string
}

// noopBreaker never trips; used when a PerformanceSpec carries no
// CircuitBreaker.
type noopBreaker struct{}

func (noopBreaker) Record(spec.AttemptRecord) {}
func (noopBreaker) Tripped() bool             { return false }
func (noopBreaker) Reason() string            { return "" }

// Dispatcher is the shared contract both strategies implement.
type Dispatcher interface {
	// Run issues up to perf.Repeat attempts against test, obeying
	// perf.Concurrency, and returns every AttemptRecord produced. Order is
	// completion order, not issue order. A nil or non-positive Repeat
	// returns an empty, non-nil slice without issuing any request. A ctx
	// cancellation stops new attempts from starting but lets in-flight
	// attempts finish and be included in the result.
	Run(ctx context.Context, exec *executor.Executor, test *spec.TestSpec, perf *spec.PerformanceSpec, vctx spec.Context, breaker Breaker) []spec.AttemptRecord
}

// effectiveConcurrency caps concurrency at repeat: spec.md §4.4 requires
// that concurrency > repeat never over-provisions idle workers.
func effectiveConcurrency(concurrency, repeat int) int {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > repeat {
		concurrency = repeat
	}
	return concurrency
}

func resolveBreaker(b Breaker) Breaker {
	if b == nil {
		return noopBreaker{}
	}
	return b
}
