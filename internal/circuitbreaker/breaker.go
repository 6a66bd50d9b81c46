// Package circuitbreaker implements the supplemental early-stop feature: a
// performance run that crosses an error-rate or error-count threshold
// before Repeat completes stops issuing new attempts. It is additive to
// the base spec — a PerformanceSpec with no CircuitBreaker behaves as if
// this package did not exist.
package circuitbreaker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/arrowcurve/loadctl/pkg/spec"
)

// conditionPattern matches expressions like "errors > 10%" or
// "error_rate > 0.1" or "failures > 50".
var conditionPattern = regexp.MustCompile(`(?i)(errors?|error_rate|failures?)\s*([><=]+)\s*([\d.]+)(%)?`)

type condition struct {
	metric    string
	operator  string
	threshold float64
	isPercent bool
}

func parseCondition(expr string) (condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return condition{}, fmt.Errorf("empty circuit breaker condition")
	}

	matches := conditionPattern.FindStringSubmatch(expr)
	if matches == nil {
		return condition{}, fmt.Errorf("invalid circuit breaker condition %q: expected format like 'errors > 10%%' or 'error_rate > 0.1'", expr)
	}

	metric := strings.ToLower(matches[1])
	switch metric {
	case "error", "errors":
		metric = "errors"
	case "failure", "failures":
		metric = "failures"
	case "error_rate":
		metric = "error_rate"
	}

	threshold, err := strconv.ParseFloat(matches[3], 64)
	if err != nil {
		return condition{}, fmt.Errorf("invalid threshold value %q: %w", matches[3], err)
	}

	return condition{
		metric:    metric,
		operator:  matches[2],
		threshold: threshold,
		isPercent: matches[4] == "%",
	}, nil
}

// Breaker tracks attempt outcomes and trips once cond's threshold is
// crossed. A nil *Breaker is always open (never trips), so callers may
// pass one through unconditionally without a nil check.
type Breaker struct {
	cond       condition
	minSamples int64

	total   int64
	errors  int64
	tripped int32

	mu     sync.Mutex
	reason string
}

// New builds a Breaker from a spec.CircuitBreaker. A nil cfg or an empty
// StopIf yields (nil, nil): the caller gets the always-open zero value by
// using a nil *Breaker.
func New(cfg *spec.CircuitBreaker) (*Breaker, error) {
	if cfg == nil || strings.TrimSpace(cfg.StopIf) == "" {
		return nil, nil
	}
	cond, err := parseCondition(cfg.StopIf)
	if err != nil {
		return nil, err
	}
	minSamples := cfg.MinSamples
	if minSamples <= 0 {
		minSamples = 100
	}
	return &Breaker{cond: cond, minSamples: minSamples}, nil
}

// Record folds one completed attempt's outcome into the breaker's running
// totals and evaluates the condition. Safe for concurrent use by both
// dispatchers.
func (b *Breaker) Record(rec spec.AttemptRecord) {
	if b == nil {
		return
	}
	total := atomic.AddInt64(&b.total, 1)
	var errors int64
	if !rec.Passed {
		errors = atomic.AddInt64(&b.errors, 1)
	} else {
		errors = atomic.LoadInt64(&b.errors)
	}
	b.evaluate(total, errors)
}

func (b *Breaker) evaluate(total, errors int64) {
	if atomic.LoadInt32(&b.tripped) == 1 {
		return
	}
	if total < b.minSamples {
		return
	}

	var value float64
	switch b.cond.metric {
	case "errors", "error_rate":
		if b.cond.isPercent {
			value = float64(errors) / float64(total) * 100
		} else {
			value = float64(errors) / float64(total)
		}
	case "failures":
		value = float64(errors)
	default:
		return
	}

	var shouldTrip bool
	switch b.cond.operator {
	case ">":
		shouldTrip = value > b.cond.threshold
	case ">=":
		shouldTrip = value >= b.cond.threshold
	case "<":
		shouldTrip = value < b.cond.threshold
	case "<=":
		shouldTrip = value <= b.cond.threshold
	}
	if !shouldTrip {
		return
	}

	if atomic.CompareAndSwapInt32(&b.tripped, 0, 1) {
		b.mu.Lock()
		if b.cond.isPercent {
			b.reason = fmt.Sprintf("circuit breaker tripped: %s (%.1f%%) crossed threshold (%.1f%%)", b.cond.metric, value, b.cond.threshold)
		} else {
			b.reason = fmt.Sprintf("circuit breaker tripped: %s (%.3f) crossed threshold (%.3f)", b.cond.metric, value, b.cond.threshold)
		}
		b.mu.Unlock()
	}
}

// Tripped reports whether the breaker has fired.
func (b *Breaker) Tripped() bool {
	if b == nil {
		return false
	}
	return atomic.LoadInt32(&b.tripped) == 1
}

// Reason returns why the breaker tripped, or "" if it hasn't.
func (b *Breaker) Reason() string {
	if b == nil {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}
