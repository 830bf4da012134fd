package orchestrator

import (
	"time"

	"github.com/switchyard-ai/switchyard/retry"
	"github.com/switchyard-ai/switchyard/selector"
)

// PolicyConfig collects the per-call tuning knobs. Zero values mean what
// they say; use DefaultPolicy for the stock settings.
type PolicyConfig struct {
	// MaxRetries bounds attempts per endpoint.
	MaxRetries int

	// BackoffBase drives exponential backoff between retries: attempt n
	// waits BackoffBase^n seconds (2.0 yields 1s, 2s, 4s, ...).
	BackoffBase float64

	// BackoffMultiplier, when set, reinterprets BackoffBase as the initial
	// wait in seconds and grows it by this factor per attempt.
	BackoffMultiplier float64

	// MaxWaitSeconds bounds total waiting on one endpoint, backoff and
	// quota waits combined, before falling back.
	MaxWaitSeconds float64

	// MinWaitBeforeFallback is a floor, in seconds, between the last
	// outward call anywhere and a switch to another endpoint.
	MinWaitBeforeFallback float64

	// FallbackStrategy orders the fallback chain after a failure.
	FallbackStrategy selector.Strategy

	// EnableContextFallback lets oversized inputs escalate to
	// larger-window endpoints drawn from the whole registry.
	EnableContextFallback bool
}

// DefaultPolicy returns the stock knobs: 3 retries, base-2 backoff, 60s
// wait budget, no fallback floor, sequential fallback, escalation on.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		MaxRetries:            3,
		BackoffBase:           2.0,
		MaxWaitSeconds:        60,
		MinWaitBeforeFallback: 0,
		FallbackStrategy:      selector.Sequential,
		EnableContextFallback: true,
	}
}

func (c PolicyConfig) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:            c.MaxRetries,
		BackoffBase:           c.BackoffBase,
		BackoffMultiplier:     c.BackoffMultiplier,
		MaxWait:               secondsToDuration(c.MaxWaitSeconds),
		MinWaitBeforeFallback: secondsToDuration(c.MinWaitBeforeFallback),
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
