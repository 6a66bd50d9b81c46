package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arrowcurve/loadctl/internal/executor"
	"github.com/arrowcurve/loadctl/internal/httpclient"
	"github.com/arrowcurve/loadctl/internal/retrypolicy"
	"github.com/arrowcurve/loadctl/pkg/spec"
)

func newTestExecutor(t *testing.T, url string) *executor.Executor {
	t.Helper()
	rp, _ := spec.NewRetryPolicy(1, time.Millisecond, 2*time.Millisecond, nil, nil)
	p, err := retrypolicy.New(rp)
	if err != nil {
		t.Fatalf("retrypolicy.New: %v", err)
	}
	return executor.New(httpclient.New(httpclient.Options{}), p, executor.BlockingSleep)
}

func dispatchers() map[string]Dispatcher {
	return map[string]Dispatcher{
		"parallel":    NewParallel(),
		"cooperative": NewCooperative(),
	}
}

func TestRunZeroRepeatReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	for name, d := range dispatchers() {
		t.Run(name, func(t *testing.T) {
			exec := newTestExecutor(t, srv.URL)
			test := &spec.TestSpec{Method: http.MethodGet, URL: srv.URL, ExpectedStatus: map[int]bool{200: true}, Timeout: time.Second}
			perf := &spec.PerformanceSpec{Repeat: 0, Concurrency: 4}
			recs := d.Run(context.Background(), exec, test, perf, nil, nil)
			if recs == nil {
				t.Fatal("expected non-nil empty slice")
			}
			if len(recs) != 0 {
				t.Fatalf("len(recs) = %d, want 0", len(recs))
			}
		})
	}
}

func TestRunConcurrencyCappedAtRepeat(t *testing.T) {
	var inflight, maxInflight int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			old := atomic.LoadInt32(&maxInflight)
			if n <= old || atomic.CompareAndSwapInt32(&maxInflight, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	for name, d := range dispatchers() {
		t.Run(name, func(t *testing.T) {
			atomic.StoreInt32(&inflight, 0)
			atomic.StoreInt32(&maxInflight, 0)
			exec := newTestExecutor(t, srv.URL)
			test := &spec.TestSpec{Method: http.MethodGet, URL: srv.URL, ExpectedStatus: map[int]bool{200: true}, Timeout: time.Second}
			perf := &spec.PerformanceSpec{Repeat: 3, Concurrency: 50}
			recs := d.Run(context.Background(), exec, test, perf, nil, nil)
			if len(recs) != 3 {
				t.Fatalf("len(recs) = %d, want 3", len(recs))
			}
			if got := atomic.LoadInt32(&maxInflight); got > 3 {
				t.Errorf("max observed in-flight = %d, want <= repeat (3)", got)
			}
		})
	}
}

func TestRunCancellationStopsNewAttempts(t *testing.T) {
	var served int32
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&served, 1)
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	for name, d := range dispatchers() {
		t.Run(name, func(t *testing.T) {
			atomic.StoreInt32(&served, 0)
			exec := newTestExecutor(t, srv.URL)
			test := &spec.TestSpec{Method: http.MethodGet, URL: srv.URL, ExpectedStatus: map[int]bool{200: true}, Timeout: 200 * time.Millisecond}
			perf := &spec.PerformanceSpec{Repeat: 20, Concurrency: 2}

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()

			recs := d.Run(ctx, exec, test, perf, nil, nil)
			if len(recs) >= 20 {
				t.Errorf("len(recs) = %d, want fewer than repeat (20) after cancellation", len(recs))
			}
		})
	}
}

// panicValidator always panics; exercises the "panic isolated, not
// crashing the run" requirement from spec.md §4.4.
type panicValidator struct{}

func (panicValidator) Validate(resp *spec.Response, ctx spec.Context) bool {
	panic("boom")
}

func TestRunIsolatesPanickingValidator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	for name, d := range dispatchers() {
		t.Run(name, func(t *testing.T) {
			exec := newTestExecutor(t, srv.URL)
			test := &spec.TestSpec{
				Method:         http.MethodGet,
				URL:            srv.URL,
				ExpectedStatus: map[int]bool{200: true},
				Timeout:        time.Second,
				Validators:     []spec.Validator{panicValidator{}},
			}
			perf := &spec.PerformanceSpec{Repeat: 4, Concurrency: 2}
			recs := d.Run(context.Background(), exec, test, perf, nil, nil)
			if len(recs) != 4 {
				t.Fatalf("len(recs) = %d, want 4", len(recs))
			}
			for _, rec := range recs {
				if rec.Passed {
					t.Errorf("rec = %+v, want Passed=false from a panicking validator", rec)
				}
			}
		})
	}
}
