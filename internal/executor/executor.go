// Package executor runs a single logical request — a request plus its
// retry sequence — against a TestSpec and produces one AttemptRecord.
//
// The retry loop is written once here; the Sleeper it is given performs
// each backoff wait. BlockingSleep, the one Sleeper this package provides,
// parks only the calling goroutine on a timer and returns early when ctx
// is done; cmd/loadctl passes it for both dispatch modes. Backoff sleeps
// must never block the cooperative scheduler's goroutine pool beyond its
// own gated slot — see internal/dispatch.
package executor

import (
	"context"
	"time"

	"github.com/arrowcurve/loadctl/internal/httpclient"
	"github.com/arrowcurve/loadctl/internal/retrypolicy"
	"github.com/arrowcurve/loadctl/pkg/spec"
)

// Sleeper performs a backoff wait. It must return early (without
// completing the full duration) if ctx is done.
type Sleeper func(ctx context.Context, d time.Duration)

// BlockingSleep is the Sleeper cmd/loadctl uses with both dispatchers: an
// ordinary blocking sleep, interruptible by ctx cancellation.
func BlockingSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Executor composes a RetryPolicy over an HTTP Client Facade.
type Executor struct {
	client *httpclient.Client
	policy *retrypolicy.Policy
	sleep  Sleeper
}

// New builds an Executor. sleep is nil-safe: a nil Sleeper defaults to
// BlockingSleep.
func New(client *httpclient.Client, policy *retrypolicy.Policy, sleep Sleeper) *Executor {
	if sleep == nil {
		sleep = BlockingSleep
	}
	return &Executor{client: client, policy: policy, sleep: sleep}
}

// Run executes test's retry sequence and returns one AttemptRecord. vctx
// is the opaque validator scratchpad (spec.Context); the executor passes
// it through to validators unchanged and never mutates or synchronizes
// it. It never panics: an unexpected error from a Validator is captured
// into the record rather than propagated, per spec.md §7.
func (e *Executor) Run(ctx context.Context, test *spec.TestSpec, vctx spec.Context) (rec spec.AttemptRecord) {
	defer func() {
		if r := recover(); r != nil {
			rec = spec.AttemptRecord{Status: 0, Passed: false, Retries: rec.Retries, Error: panicMessage(r)}
		}
	}()

	attempt := 0
	retries := 0

	for {
		start := time.Now()
		resp, kind, err := e.client.Issue(ctx, test.Method, test.URL, test.Headers, test.Body, test.Timeout)
		elapsedMS := float64(time.Since(start)) / float64(time.Millisecond)

		if err != nil {
			if attempt < e.policy.MaxRetries() && e.policy.ShouldRetryError(kind) {
				e.sleep(ctx, e.policy.Backoff(attempt))
				attempt++
				retries++
				if ctx.Err() != nil {
					return spec.AttemptRecord{Status: 0, ElapsedMS: elapsedMS, Passed: false, Retries: retries, Error: string(kind)}
				}
				continue
			}
			return spec.AttemptRecord{Status: 0, ElapsedMS: elapsedMS, Passed: false, Retries: retries, Error: string(kind)}
		}

		if attempt < e.policy.MaxRetries() && e.policy.ShouldRetryStatus(resp.Status) {
			e.sleep(ctx, e.policy.Backoff(attempt))
			attempt++
			retries++
			if ctx.Err() != nil {
				return spec.AttemptRecord{Status: resp.Status, ElapsedMS: elapsedMS, Passed: false, Retries: retries}
			}
			continue
		}

		expected := test.ExpectedStatus
		if len(expected) == 0 {
			expected = map[int]bool{200: true}
		}
		passed := expected[resp.Status]
		validatorErr := ""
		if passed {
			for _, v := range test.Validators {
				if ok := safeValidate(v, resp, vctx); !ok.passed {
					passed = false
					validatorErr = ok.err
					break
				}
			}
		}

		return spec.AttemptRecord{
			Status:    resp.Status,
			ElapsedMS: elapsedMS,
			Passed:    passed,
			Retries:   retries,
			Error:     validatorErr,
		}
	}
}

type validateOutcome struct {
	passed bool
	err    string
}

// safeValidate isolates a single validator's panic so that one faulty
// Validator cannot crash the whole run — a ValidatorError is deterministic
// with respect to the response and is never retried (spec.md §7).
func safeValidate(v spec.Validator, resp *spec.Response, vctx spec.Context) (out validateOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = validateOutcome{passed: false, err: panicMessage(r)}
		}
	}()
	if v.Validate(resp, vctx) {
		return validateOutcome{passed: true}
	}
	return validateOutcome{passed: false, err: "validator returned false"}
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "panic"
}
