package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/arrowcurve/loadctl/internal/executor"
	"github.com/arrowcurve/loadctl/pkg/spec"
)

// Parallel is the parallel-workers Dispatcher: a fixed pool of goroutines,
// each pulling the next unit of work and blocking synchronously on the
// executor's network I/O and backoff sleeps — the direct descendant of the
// teacher's Attack() worker loop, minus its rate limiter and staging (no
// rate/Stages concept exists in this spec's PerformanceSpec).
type Parallel struct{}

// NewParallel builds a Parallel dispatcher. It holds no state; a value is
// only a convenience for satisfying the Dispatcher interface.
func NewParallel() *Parallel { return &Parallel{} }

func (Parallel) Run(ctx context.Context, exec *executor.Executor, test *spec.TestSpec, perf *spec.PerformanceSpec, vctx spec.Context, breaker Breaker) []spec.AttemptRecord {
	if perf == nil || perf.Repeat <= 0 {
		return []spec.AttemptRecord{}
	}
	breaker = resolveBreaker(breaker)
	workers := effectiveConcurrency(perf.Concurrency, perf.Repeat)

	work := make(chan struct{})
	recs := make(chan spec.AttemptRecord, perf.Repeat)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for range work {
				recs <- safeRun(ctx, exec, test, vctx)
			}
		}()
	}

	go func() {
		defer close(work)
		for i := 0; i < perf.Repeat; i++ {
			if ctx.Err() != nil || breaker.Tripped() {
				return
			}
			select {
			case work <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(recs)
	}()

	out := make([]spec.AttemptRecord, 0, perf.Repeat)
	for rec := range recs {
		out = append(out, rec)
		breaker.Record(rec)
	}
	return out
}

// safeRun isolates a panic that escapes the executor itself (Executor.Run
// already recovers its own panics; this is the dispatcher's own
// belt-and-suspenders backstop, matching the teacher's top-level recover in
// cmd/sayl/main.go) so that one bad worker iteration cannot take down the
// whole pool.
func safeRun(ctx context.Context, exec *executor.Executor, test *spec.TestSpec, vctx spec.Context) (rec spec.AttemptRecord) {
	defer func() {
		if r := recover(); r != nil {
			rec = spec.AttemptRecord{Status: 0, Passed: false, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return exec.Run(ctx, test, vctx)
}
