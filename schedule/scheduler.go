// Package schedule merges budget admission, endpoint cooldowns and the
// retry policy's wait bounds into a single proceed/wait/fallback decision.
package schedule

import (
	"time"

	"github.com/switchyard-ai/switchyard/budget"
	"github.com/switchyard-ai/switchyard/catalog"
	"github.com/switchyard-ai/switchyard/retry"

	. "github.com/switchyard-ai/switchyard/internal/logging"
)

// DecisionKind says what the caller should do with the pending call.
type DecisionKind int

const (
	// Proceed admits the call now.
	Proceed DecisionKind = iota
	// Wait asks the caller to sleep Delay and decide again.
	Wait
	// Fallback tells the caller to abandon this endpoint for another.
	Fallback
)

func (k DecisionKind) String() string {
	switch k {
	case Proceed:
		return "proceed"
	case Wait:
		return "wait"
	case Fallback:
		return "fallback"
	}
	return "unknown"
}

// Decision reasons beyond the budget denial dimensions.
const (
	ReasonCooldown = "cooldown"
	ReasonFloor    = "fallback_floor"
)

// Request describes one pending call on one endpoint.
type Request struct {
	Endpoint        catalog.EndpointID
	EstimatedTokens int

	// ElapsedWait is the time already spent waiting on this endpoint in
	// the current attempt sequence. The scheduler stops granting waits
	// once the total would exceed the policy's MaxWait.
	ElapsedWait time.Duration

	// FloorWaited marks that the single floor-driven wait for this
	// sequence was already granted, so the next over-budget decision
	// falls back instead of waiting again.
	FloorWaited bool
}

// Decision is the scheduler's verdict.
type Decision struct {
	Kind DecisionKind
	// Delay is how long to sleep for Wait, and for Fallback the wait the
	// endpoint would have needed, kept for diagnostics.
	Delay time.Duration
	// Floor marks a Wait granted to satisfy the inter-call floor rather
	// than a quota window.
	Floor  bool
	Reason string
}

// Scheduler decides call admission against a budget tracker under a retry
// policy. It holds no per-call state; callers thread ElapsedWait and
// FloorWaited through their retry loop.
type Scheduler struct {
	budget *budget.Tracker
	policy retry.Policy
}

// New returns a Scheduler over the tracker.
func New(tracker *budget.Tracker, policy retry.Policy) *Scheduler {
	return &Scheduler{budget: tracker, policy: policy}
}

// Decide evaluates the request without reserving budget. Two identical
// Decide calls can both see Proceed; use Admit when the verdict commits
// the caller.
func (s *Scheduler) Decide(req Request) Decision {
	ok, denial, wait := s.budget.Check(req.Endpoint, req.EstimatedTokens)
	return s.resolve(req, ok, string(denial), wait, s.budget.CooldownRemaining(req.Endpoint))
}

// Admit is Decide plus reservation: a Proceed verdict has already recorded
// the request's usage, so concurrent admitters cannot jointly overrun a
// quota.
func (s *Scheduler) Admit(req Request) Decision {
	if cd := s.budget.CooldownRemaining(req.Endpoint); cd > 0 {
		ok, denial, wait := s.budget.Check(req.Endpoint, req.EstimatedTokens)
		return s.resolve(req, ok, string(denial), wait, cd)
	}
	ok, denial, wait := s.budget.Acquire(req.Endpoint, req.EstimatedTokens)
	return s.resolve(req, ok, string(denial), wait, 0)
}

func (s *Scheduler) resolve(req Request, ok bool, reason string, wait, cooldown time.Duration) Decision {
	if cooldown > 0 {
		ok = false
		if cooldown > wait {
			wait = cooldown
			reason = ReasonCooldown
		}
		if reason == "" {
			reason = ReasonCooldown
		}
	}
	if ok {
		return Decision{Kind: Proceed}
	}
	L_trace("schedule: denied", "endpoint", req.Endpoint, "reason", reason, "wait", wait, "elapsed", req.ElapsedWait)
	if req.ElapsedWait+wait <= s.policy.MaxWait {
		return Decision{Kind: Wait, Delay: wait, Reason: reason}
	}
	if !req.FloorWaited {
		if remaining := s.policy.WaitRemaining(s.budget.SinceLastGlobalCall()); remaining > 0 {
			return Decision{Kind: Wait, Delay: remaining, Floor: true, Reason: ReasonFloor}
		}
	}
	return Decision{Kind: Fallback, Delay: wait, Reason: reason}
}
