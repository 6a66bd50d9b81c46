package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/arrowcurve/loadctl/internal/aggregator"
	"github.com/arrowcurve/loadctl/internal/artifact"
	"github.com/arrowcurve/loadctl/internal/circuitbreaker"
	"github.com/arrowcurve/loadctl/internal/dispatch"
	"github.com/arrowcurve/loadctl/internal/executor"
	"github.com/arrowcurve/loadctl/internal/httpclient"
	"github.com/arrowcurve/loadctl/internal/monitor"
	"github.com/arrowcurve/loadctl/internal/retrypolicy"
	"github.com/arrowcurve/loadctl/pkg/config"
	"github.com/arrowcurve/loadctl/pkg/spec"
)

// observingBreaker composes the circuit breaker's stop decision with a
// live progress monitor: every completed attempt updates both, but only
// the breaker's verdict can halt a run.
type observingBreaker struct {
	breaker *circuitbreaker.Breaker
	mon     *monitor.Monitor
}

func (o observingBreaker) Record(rec spec.AttemptRecord) {
	o.breaker.Record(rec)
	o.mon.Add(rec)
}
func (o observingBreaker) Tripped() bool  { return o.breaker.Tripped() }
func (o observingBreaker) Reason() string { return o.breaker.Reason() }

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("\n❌ Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	runtime.GOMAXPROCS(runtime.NumCPU())

	var (
		configPath  string
		repeat      int
		concurrency int
		debugMode   bool
	)

	flag.StringVar(&configPath, "config", "", "Path to YAML suite file")
	flag.StringVar(&configPath, "f", "", "Path to YAML suite file (shorthand)")
	flag.IntVar(&repeat, "repeat", 0, "Override performance.repeat from the suite file")
	flag.IntVar(&concurrency, "concurrency", 0, "Override performance.concurrency from the suite file")
	flag.BoolVar(&debugMode, "debug", false, "Run a single iteration at concurrency 1 (-repeat and -concurrency still override)")
	flag.BoolVar(&debugMode, "d", false, "Run in debug mode (shorthand)")
	flag.Parse()

	if configPath == "" {
		fmt.Println("❌ a suite file is required: loadctl -config suite.yaml")
		os.Exit(1)
	}

	suite, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Configuration Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n⚠️  received interrupt, letting in-flight requests finish...")
		cancel()
	}()

	client := httpclient.New(suite.ClientOptions)
	defer client.Close()

	policy, err := retrypolicy.New(suite.Retry)
	if err != nil {
		fmt.Printf("Configuration Error: %v\n", err)
		os.Exit(1)
	}
	exec := executor.New(client, policy, executor.BlockingSleep)

	for _, test := range suite.Tests {
		perf := test.Performance
		if perf == nil {
			perf = &spec.PerformanceSpec{Repeat: 1, Concurrency: 1, Mode: spec.ModeParallelWorkers}
		}
		if debugMode {
			perf = &spec.PerformanceSpec{
				Repeat: 1, Concurrency: 1, Mode: spec.ModeParallelWorkers,
				RPSMode: perf.RPSMode, Percentiles: perf.Percentiles,
			}
		}
		if repeat > 0 {
			perf.Repeat = repeat
		}
		if concurrency > 0 {
			perf.Concurrency = concurrency
		}

		breaker, err := circuitbreaker.New(perf.Breaker)
		if err != nil {
			fmt.Printf("Configuration Error: %v\n", err)
			os.Exit(1)
		}
		mon := monitor.New()
		observer := observingBreaker{breaker: breaker, mon: mon}

		d := dispatcherFor(perf.Mode)

		stopProgress := startProgressTicker(mon, perf.Repeat)
		start := time.Now()
		records := d.Run(ctx, exec, test, perf, spec.Context{}, observer)
		wallTime := time.Since(start).Seconds()
		stopProgress()

		summary := aggregator.Summarize(records, perf, wallTime)
		if breaker.Tripped() {
			summary.StoppedEarly = true
			summary.StopReason = breaker.Reason()
		}

		printSummary(test.Name, summary)
		artifact.Write(perf, summary)

		if ctx.Err() != nil {
			break
		}
	}
}

// startProgressTicker prints a one-line live snapshot every second while a
// run is in flight, skipped entirely for runs too small to need it. It
// returns a func to call once the run completes, which stops the ticker.
func startProgressTicker(mon *monitor.Monitor, repeat int) func() {
	if repeat < 500 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s := mon.Snapshot()
				fmt.Printf("\r  in flight: %d done (%d ok, %d fail) rps=%.0f p95=%s", s.Requests, s.Success, s.Fail, s.RPS, s.P95)
			case <-done:
				fmt.Print("\r")
				return
			}
		}
	}()
	return func() { close(done) }
}

func dispatcherFor(mode spec.DispatchMode) dispatch.Dispatcher {
	if mode == spec.ModeCooperativeAsync {
		return dispatch.NewCooperative()
	}
	return dispatch.NewParallel()
}

func printSummary(name string, s spec.PerfSummary) {
	fmt.Printf("\n%s\n", name)
	fmt.Printf("  total=%d passed=%d failed=%d\n", s.Total, s.Passed, s.Failed)
	fmt.Printf("  latency_ms min=%.2f avg=%.2f max=%.2f\n", s.MinMS, s.AvgMS, s.MaxMS)
	fmt.Printf("  rps=%.2f wall_time_sec=%.2f retries=%d\n", s.RPS, s.WallTimeSec, s.TotalRetries)
	for _, p := range sortedPercentileKeys(s.Percentiles) {
		fmt.Printf("  %s=%.2fms\n", p, s.Percentiles[p])
	}
	if s.ThresholdExceeded != nil {
		fmt.Printf("  threshold_exceeded=%d\n", *s.ThresholdExceeded)
	}
	if s.StoppedEarly {
		fmt.Printf("  ⚠️  stopped early: %s\n", s.StopReason)
	}
}

func sortedPercentileKeys(m map[string]float64) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
