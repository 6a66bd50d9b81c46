package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/arrowcurve/loadctl/internal/executor"
	"github.com/arrowcurve/loadctl/pkg/spec"
)

// Cooperative is the cooperative-async Dispatcher: each of the Repeat
// tasks gets its own goroutine, started only once it has acquired a slot
// of a single weighted semaphore, so at most Concurrency exist at once. Go has no native
// coroutines, so this models the original's single-threaded
// asyncio.Semaphore scheduler (pyresttest/performance_async.py) the
// idiomatic Go way: every suspension point — acquiring the gate, issuing
// the request, backing off — is an explicit channel or semaphore
// operation, never an OS thread parked mid-stack the way Parallel's
// workers are.
type Cooperative struct{}

// NewCooperative builds a Cooperative dispatcher.
func NewCooperative() *Cooperative { return &Cooperative{} }

func (Cooperative) Run(ctx context.Context, exec *executor.Executor, test *spec.TestSpec, perf *spec.PerformanceSpec, vctx spec.Context, breaker Breaker) []spec.AttemptRecord {
	if perf == nil || perf.Repeat <= 0 {
		return []spec.AttemptRecord{}
	}
	breaker = resolveBreaker(breaker)
	concurrency := effectiveConcurrency(perf.Concurrency, perf.Repeat)
	sem := semaphore.NewWeighted(int64(concurrency))

	recs := make(chan spec.AttemptRecord, perf.Repeat)

	go func() {
		var wg sync.WaitGroup
		defer func() {
			wg.Wait()
			close(recs)
		}()
		for i := 0; i < perf.Repeat; i++ {
			if ctx.Err() != nil || breaker.Tripped() {
				return
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				// ctx was cancelled while waiting for a gate slot; no new
				// attempt starts, and nothing was acquired to release.
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				recs <- safeRun(ctx, exec, test, vctx)
			}()
		}
	}()

	out := make([]spec.AttemptRecord, 0, perf.Repeat)
	for rec := range recs {
		out = append(out, rec)
		breaker.Record(rec)
	}
	return out
}
