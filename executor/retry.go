package executor

import (
	"time"

	"github.com/hupe1980/reportmesh/core"
)

// RetryPolicy controls per-unit retry behavior. The delay doubles from
// InitialDelay on each attempt and is capped at MaxDelay. Retryable decides
// which errors are worth another attempt; everything else escalates
// immediately.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries per unit, including the first.
	MaxAttempts int
	// InitialDelay is the backoff before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// Retryable classifies errors. Nil means core.IsTransient.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the production defaults: three attempts, 500ms
// initial backoff doubling up to 8s, retrying transient failures only.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Retryable:    core.IsTransient,
	}
}

// normalized fills zero fields with defaults so a partially specified policy
// behaves sanely.
func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Retryable == nil {
		p.Retryable = def.Retryable
	}
	return p
}

// Delay returns the backoff before the attempt following the given one.
// Attempt numbering starts at 1, so Delay(1) is the wait before attempt 2.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
