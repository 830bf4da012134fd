// Package retry holds the arithmetic for bounded retries with exponential
// backoff, plus the inter-call floor consulted before switching providers.
// A Policy is immutable and carries no clock; every method is a pure
// function of its arguments.
package retry

import (
	"math"
	"time"
)

// Defaults applied by Normalize for zero-valued fields.
const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 2.0
	DefaultMaxWait     = 60 * time.Second
)

// Policy bounds one endpoint-attempt sequence.
type Policy struct {
	// MaxRetries bounds attempts on a single endpoint. Attempt numbers are
	// zero-based, so MaxRetries=3 allows attempts 0, 1 and 2.
	MaxRetries int

	// BackoffBase is the exponential base: attempt n backs off
	// BackoffBase^n seconds. When BackoffMultiplier is set, BackoffBase is
	// reinterpreted as the initial wait in seconds and the multiplier
	// drives growth instead.
	BackoffBase float64

	// BackoffMultiplier, when non-zero, switches Backoff to
	// BackoffBase seconds * BackoffMultiplier^attempt.
	BackoffMultiplier float64

	// MaxWait bounds the total time spent waiting on one endpoint before
	// giving up on it.
	MaxWait time.Duration

	// MinWaitBeforeFallback is the floor between the last outward call on
	// any endpoint and a switch to another one. Zero disables the floor.
	MinWaitBeforeFallback time.Duration
}

// Normalize returns the policy with defaults applied to zero-valued
// MaxRetries, BackoffBase and MaxWait. MinWaitBeforeFallback and
// BackoffMultiplier stay as given, zero is meaningful for both.
func (p Policy) Normalize() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = DefaultBackoffBase
	}
	if p.MaxWait <= 0 {
		p.MaxWait = DefaultMaxWait
	}
	return p
}

// ShouldRetry reports whether attempt number attempt may still run on the
// same endpoint, given the total time already spent waiting on it.
func (p Policy) ShouldRetry(attempt int, elapsedWait time.Duration) bool {
	return attempt < p.MaxRetries && elapsedWait <= p.MaxWait
}

// Backoff returns the wait before the attempt following attempt n.
// With only BackoffBase set the series is BackoffBase^n seconds
// (base 2.0 yields 1s, 2s, 4s, 8s, ...). With BackoffMultiplier set the
// series starts at BackoffBase seconds and grows by the multiplier.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	var seconds float64
	if p.BackoffMultiplier > 0 {
		seconds = base * math.Pow(p.BackoffMultiplier, float64(attempt))
	} else {
		seconds = math.Pow(base, float64(attempt))
	}
	return time.Duration(seconds * float64(time.Second))
}

// ShouldFallback reports whether the caller should abandon the current
// endpoint for another one: retries or wait budget exhausted, and the
// inter-call floor satisfied.
func (p Policy) ShouldFallback(attempt int, elapsedWait, sinceLastGlobal time.Duration) bool {
	exhausted := attempt >= p.MaxRetries || elapsedWait > p.MaxWait
	return exhausted && sinceLastGlobal >= p.MinWaitBeforeFallback
}

// WaitRemaining returns how much of the inter-call floor is still owed
// given the time since the last outward call anywhere. Zero when the floor
// is already satisfied or disabled.
func (p Policy) WaitRemaining(sinceLastGlobal time.Duration) time.Duration {
	if p.MinWaitBeforeFallback <= 0 || sinceLastGlobal >= p.MinWaitBeforeFallback {
		return 0
	}
	return p.MinWaitBeforeFallback - sinceLastGlobal
}
