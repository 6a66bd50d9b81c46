// Package retrypolicy implements the pure, stateless retry decision logic
// shared by both dispatchers: whether a given status or transport error is
// retryable, and how long to back off before the next attempt.
package retrypolicy

import (
	"time"

	"github.com/arrowcurve/loadctl/pkg/spec"
)

// Policy wraps a spec.RetryPolicy with the decision methods spec.md §4.1
// names. It does no I/O and holds no mutable state.
type Policy struct {
	cfg *spec.RetryPolicy
}

// New validates cfg and returns a Policy. It is the single construction
// point callers should use instead of poking at spec.RetryPolicy directly.
func New(cfg *spec.RetryPolicy) (*Policy, error) {
	if cfg == nil {
		cfg, _ = spec.NewRetryPolicy(0, time.Second, 30*time.Second, nil, nil)
	}
	if cfg.MaxRetries < 0 {
		return nil, spec.ErrInvalidConfig
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}
	return &Policy{cfg: cfg}, nil
}

// ShouldRetryStatus reports whether code is one of the configured
// retry_statuses.
func (p *Policy) ShouldRetryStatus(code int) bool {
	return p.cfg.RetryStatuses[code]
}

// ShouldRetryError reports whether kind is one of the configured
// retry_errors.
func (p *Policy) ShouldRetryError(kind spec.TransportErrorKind) bool {
	return p.cfg.RetryErrors[kind]
}

// Backoff returns min(backoff_base * 2^attempt, backoff_max). attempt=0
// yields backoff_base, not zero — this is inherited behavior (spec.md §9)
// that callers must preserve: there is always a nonzero pause between the
// first failure and the first retry.
func (p *Policy) Backoff(attempt int) time.Duration {
	base := p.cfg.BackoffBase
	if attempt > 62 {
		// Guard against overflow in the shift; any policy's backoff_max
		// will have already capped us long before this attempt count.
		return p.cfg.BackoffMax
	}
	d := base << uint(attempt)
	if d < base || d > p.cfg.BackoffMax {
		return p.cfg.BackoffMax
	}
	return d
}

// MaxAttempts returns max_retries + 1, the total number of attempts a
// logical request may make.
func (p *Policy) MaxAttempts() int {
	return p.cfg.MaxRetries + 1
}

// MaxRetries returns the configured max_retries.
func (p *Policy) MaxRetries() int {
	return p.cfg.MaxRetries
}
