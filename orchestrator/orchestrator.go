// Package orchestrator drives one logical model call through context
// fitting, budget admission, invocation, retry and fallback until it
// succeeds or every eligible endpoint is spent.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/switchyard-ai/switchyard/budget"
	"github.com/switchyard-ai/switchyard/catalog"
	"github.com/switchyard-ai/switchyard/fitter"
	"github.com/switchyard-ai/switchyard/llm"
	"github.com/switchyard-ai/switchyard/schedule"
	"github.com/switchyard-ai/switchyard/selector"
	"github.com/switchyard-ai/switchyard/telemetry"

	. "github.com/switchyard-ai/switchyard/internal/logging"
)

// Registry is the catalog surface the orchestrator and its helpers read.
// *catalog.Catalog satisfies it.
type Registry interface {
	Lookup(catalog.EndpointID) (catalog.Endpoint, bool)
	ContextOf(catalog.EndpointID) catalog.ContextProfile
	CostOf(catalog.EndpointID) (perK float64, ok bool)
	AllEndpoints() []catalog.EndpointID
}

// Orchestrator coordinates calls across a budget tracker, a context fitter
// and a fallback selector. Safe for concurrent use; per-call state lives on
// the stack of ExecuteWithFallback.
type Orchestrator struct {
	registry   Registry
	budget     *budget.Tracker
	fit        *fitter.Fitter
	invoker    llm.Invoker
	classifier llm.Classifier
	sink       telemetry.Sink
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSink routes terminal call outcomes to s.
func WithSink(s telemetry.Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithClassifier replaces the keyword error classifier.
func WithClassifier(c llm.Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

// WithFitter replaces the default fitter built over the registry.
func WithFitter(f *fitter.Fitter) Option {
	return func(o *Orchestrator) { o.fit = f }
}

// WithSleep replaces the cancellable sleep, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New returns an Orchestrator over the registry, tracker and invoker.
func New(registry Registry, tracker *budget.Tracker, invoker llm.Invoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:   registry,
		budget:     tracker,
		invoker:    invoker,
		classifier: llm.KeywordClassifier{},
		sink:       telemetry.Discard,
		sleep:      sleepCtx,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fit == nil {
		o.fit = fitter.New(registry)
	}
	return o
}

// Result is a successful call.
type Result struct {
	Response *llm.Response
	// Endpoint answered the call.
	Endpoint   catalog.EndpointID
	WasPrimary bool
	// Attempts lists the endpoints that failed before Endpoint answered.
	Attempts []Attempt
	Cost     llm.Cost
	CallID   string
	// Waited is the total time spent sleeping on quota, floors and
	// backoff across the whole call.
	Waited time.Duration
}

type state int

const (
	stateCheckContext state = iota
	stateSchedule
	stateInvoke
	stateSelectFallback
)

// callRun is the bookkeeping for one logical call.
type callRun struct {
	callID     string
	input      string
	primary    catalog.EndpointID
	candidates []catalog.EndpointID
	attempted  map[catalog.EndpointID]bool
	trail      []catalog.EndpointID
	attempts   []Attempt
	lastErr    error
	lastType   llm.ErrorType
	waited     time.Duration
}

// fail closes out one endpoint's attempt sequence.
func (r *callRun) fail(id catalog.EndpointID, t llm.ErrorType, err error, retries int, skipped bool) {
	if !r.attempted[id] {
		r.attempted[id] = true
		r.trail = append(r.trail, id)
	}
	r.attempts = append(r.attempts, Attempt{Endpoint: id, ErrorType: t, Err: err, Retries: retries, Skipped: skipped})
	r.lastErr = err
	r.lastType = t
}

func (r *callRun) dropCandidate(id catalog.EndpointID) {
	for i, c := range r.candidates {
		if c == id {
			r.candidates = append(r.candidates[:i], r.candidates[i+1:]...)
			return
		}
	}
}

// ExecuteWithFallback runs one logical call: primary first, then fallbacks
// as the policy and strategy allow. The returned error is a
// *ContextTooLargeError when nothing can hold the input, a wrapped ctx
// error on cancellation, and a *ExhaustedError once every endpoint failed.
func (o *Orchestrator) ExecuteWithFallback(ctx context.Context, primary catalog.EndpointID, fallbacks []catalog.EndpointID, input string, cfg PolicyConfig) (*Result, error) {
	if !primary.Valid() {
		return nil, fmt.Errorf("invalid primary endpoint %q", primary)
	}

	pol := cfg.retryPolicy()
	sched := schedule.New(o.budget, pol)
	sel := selector.New(cfg.FallbackStrategy, o.registry)

	run := &callRun{
		callID:     uuid.NewString(),
		input:      input,
		primary:    primary,
		candidates: dedupeChain(primary, fallbacks),
		attempted:  map[catalog.EndpointID]bool{},
	}

	L_debug("orchestrator: call start",
		"callID", run.callID, "primary", primary,
		"fallbacks", len(run.candidates), "strategy", sel.Strategy())

	var (
		current        = primary
		attempt        = 0                  // zero-based attempt number on current
		endpointWaited = time.Duration(0)   // quota + backoff waits on current
		floorWaited    = false              // the one floor wait was granted
		estimated      = 0                  // input tokens, possibly raised by minRequired
		minRequired    = 0                  // floor on required tokens after a provider overflow
	)

	st := stateCheckContext
	for {
		if err := ctx.Err(); err != nil {
			return nil, o.cancelled(run, current, err)
		}

		switch st {
		case stateCheckContext:
			fit := o.fit.CheckFits(run.input, current)
			estimated = fit.EstimatedTokens
			if minRequired > estimated {
				estimated = minRequired
			}
			if fit.Fits && estimated <= fit.MaxContext {
				st = stateSchedule
				continue
			}
			// Known-undersized endpoints are never invoked. Mid-flight
			// overflows arrive here already recorded, hence the guard.
			if !run.attempted[current] {
				run.fail(current, llm.ErrorContextExceeded, &llm.ContextExceededError{
					Endpoint:        current,
					EstimatedTokens: estimated,
					MaxContext:      fit.MaxContext,
				}, 0, true)
			}
			if !cfg.EnableContextFallback {
				L_debug("orchestrator: input too large, escalation disabled",
					"callID", run.callID, "endpoint", current, "estimated", estimated)
				st = stateSelectFallback
				continue
			}
			next, ok := o.escalationTarget(run, estimated)
			if !ok {
				largestID, largest := o.fit.LargestContext()
				o.finish(run, current, telemetry.OutcomeTooLarge)
				L_warn("orchestrator: input too large for every endpoint",
					"callID", run.callID, "estimated", estimated, "largest", largest)
				return nil, &ContextTooLargeError{
					EstimatedTokens: estimated,
					LargestEndpoint: largestID,
					LargestContext:  largest,
				}
			}
			L_info("orchestrator: escalating to larger context",
				"callID", run.callID, "from", current, "to", next, "requiredTokens", estimated)
			run.dropCandidate(next)
			current, attempt, endpointWaited, floorWaited = next, 0, 0, false

		case stateSchedule:
			d := sched.Admit(schedule.Request{
				Endpoint:        current,
				EstimatedTokens: estimated,
				ElapsedWait:     endpointWaited,
				FloorWaited:     floorWaited,
			})
			switch d.Kind {
			case schedule.Proceed:
				st = stateInvoke
			case schedule.Wait:
				L_debug("orchestrator: waiting for admission",
					"callID", run.callID, "endpoint", current,
					"delay", d.Delay, "reason", d.Reason, "floor", d.Floor)
				if err := o.sleep(ctx, d.Delay); err != nil {
					return nil, o.cancelled(run, current, err)
				}
				run.waited += d.Delay
				endpointWaited += d.Delay
				if d.Floor {
					floorWaited = true
				}
			case schedule.Fallback:
				err := &llm.RateLimitError{
					Endpoint: current,
					Cause:    fmt.Errorf("admission denied (%s), refill in %s exceeds wait budget", d.Reason, d.Delay),
				}
				run.fail(current, llm.ErrorRateLimited, err, attempt, true)
				L_debug("orchestrator: budget fallback",
					"callID", run.callID, "endpoint", current, "reason", d.Reason, "refill", d.Delay)
				st = stateSelectFallback
			}

		case stateInvoke:
			if attempt > 0 {
				// Retries skip re-admission, the backoff was the wait. The
				// outward call still counts against the quota windows.
				o.budget.RecordUsage(current, estimated)
			}
			started := o.now()
			resp, err := o.invoker.Invoke(ctx, llm.Request{
				Endpoint:  current,
				Input:     run.input,
				MaxTokens: o.fit.CapOutputTokens(current, estimated),
			})
			if err == nil {
				return o.succeed(run, current, resp, started), nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, o.cancelled(run, current, ctxErr)
			}

			window := o.registry.ContextOf(current).ContextWindow
			errType, typed := o.typed(current, err, estimated, window)
			L_warn("orchestrator: invocation failed",
				"callID", run.callID, "endpoint", current,
				"attempt", attempt, "errType", errType, "error", err)

			switch {
			case errType == llm.ErrorContextExceeded:
				// The provider's verdict overrides the local estimate;
				// raise the requirement past this window and escalate.
				run.fail(current, errType, typed, attempt, false)
				if window >= estimated {
					minRequired = window + 1
				} else {
					minRequired = estimated + 1
				}
				st = stateCheckContext
			case llm.Retryable(errType) && pol.ShouldRetry(attempt+1, endpointWaited):
				delay := pol.Backoff(attempt)
				L_debug("orchestrator: backing off",
					"callID", run.callID, "endpoint", current,
					"attempt", attempt, "backoff", delay)
				if serr := o.sleep(ctx, delay); serr != nil {
					return nil, o.cancelled(run, current, serr)
				}
				run.waited += delay
				endpointWaited += delay
				attempt++
			default:
				run.fail(current, errType, typed, attempt, false)
				if llm.IsFailover(errType) {
					o.budget.MarkFailure(current, string(errType))
				}
				st = stateSelectFallback
			}

		case stateSelectFallback:
			next, ok := sel.SelectNext(current, run.candidates, run.lastType,
				selector.Metadata{EstimatedTokens: estimated})
			if !ok {
				o.finish(run, current, telemetry.OutcomeExhausted)
				L_warn("orchestrator: all endpoints exhausted",
					"callID", run.callID, "tried", len(run.trail), "lastError", run.lastErr)
				return nil, &ExhaustedError{Trail: run.trail, Attempts: run.attempts, LastErr: run.lastErr}
			}
			run.dropCandidate(next)
			L_info("orchestrator: falling back",
				"callID", run.callID, "from", current, "to", next, "errType", run.lastType)
			current, attempt, endpointWaited, floorWaited = next, 0, 0, false
			st = stateCheckContext
		}
	}
}

// escalationTarget picks the smallest not-yet-tried window that holds the
// input, searching the whole registry rather than the caller's chain.
func (o *Orchestrator) escalationTarget(run *callRun, requiredTokens int) (catalog.EndpointID, bool) {
	for _, id := range o.fit.LargerContextCandidates(requiredTokens) {
		if !run.attempted[id] {
			return id, true
		}
	}
	return "", false
}

func (o *Orchestrator) succeed(run *callRun, id catalog.EndpointID, resp *llm.Response, started time.Time) *Result {
	if resp.Latency == 0 {
		resp.Latency = o.now().Sub(started)
	}
	ep, _ := o.registry.Lookup(id)
	cost := llm.CalculateCost(ep.Pricing, resp.InputTokens, resp.OutputTokens)
	o.budget.ClearCooldown(id)

	res := &Result{
		Response:   resp,
		Endpoint:   id,
		WasPrimary: id == run.primary,
		Attempts:   run.attempts,
		Cost:       cost,
		CallID:     run.callID,
		Waited:     run.waited,
	}
	o.sink.Record(telemetry.Event{
		CallID:       run.callID,
		Time:         o.now(),
		Endpoint:     id,
		Outcome:      telemetry.OutcomeSuccess,
		Attempts:     len(run.trail) + 1,
		WasPrimary:   res.WasPrimary,
		FailedOver:   !res.WasPrimary,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		CostUSD:      cost.TotalUSD,
		Latency:      resp.Latency,
		Waited:       run.waited,
	})
	L_info("orchestrator: call complete",
		"callID", run.callID, "endpoint", id,
		"failedOver", !res.WasPrimary, "costUSD", cost.TotalUSD,
		"latency", resp.Latency, "waited", run.waited)
	return res
}

// finish emits the terminal event for a failed call.
func (o *Orchestrator) finish(run *callRun, id catalog.EndpointID, outcome telemetry.Outcome) {
	o.sink.Record(telemetry.Event{
		CallID:     run.callID,
		Time:       o.now(),
		Endpoint:   id,
		Outcome:    outcome,
		ErrorType:  string(run.lastType),
		Attempts:   len(run.trail),
		WasPrimary: id == run.primary,
		FailedOver: len(run.trail) > 1,
		Waited:     run.waited,
	})
}

func (o *Orchestrator) cancelled(run *callRun, id catalog.EndpointID, cause error) error {
	o.finish(run, id, telemetry.OutcomeCancelled)
	L_debug("orchestrator: call cancelled", "callID", run.callID, "endpoint", id)
	return fmt.Errorf("call %s cancelled: %w", run.callID, cause)
}

// typed returns err's taxonomy class plus an error of the matching concrete
// type. Errors the adapters already typed pass through untouched; raw ones
// are classified and wrapped so callers can errors.As on results.
func (o *Orchestrator) typed(id catalog.EndpointID, err error, estimated, window int) (llm.ErrorType, error) {
	if alreadyTyped(err) {
		return llm.TypeOf(err), err
	}
	t := o.classifier.Classify(err)
	switch t {
	case llm.ErrorRateLimited:
		return t, &llm.RateLimitError{Endpoint: id, Cause: err}
	case llm.ErrorContextExceeded:
		return t, &llm.ContextExceededError{Endpoint: id, EstimatedTokens: estimated, MaxContext: window, Cause: err}
	case llm.ErrorFatal:
		return t, &llm.FatalError{Endpoint: id, Cause: err}
	default:
		return llm.ErrorTransient, &llm.TransientError{Endpoint: id, Cause: err}
	}
}

func alreadyTyped(err error) bool {
	var rl *llm.RateLimitError
	var ce *llm.ContextExceededError
	var te *llm.TransientError
	var fe *llm.FatalError
	return errors.As(err, &rl) || errors.As(err, &ce) || errors.As(err, &te) || errors.As(err, &fe)
}

// dedupeChain drops empty entries, duplicates and the primary itself, so an
// endpoint can be offered at most once per call.
func dedupeChain(primary catalog.EndpointID, fallbacks []catalog.EndpointID) []catalog.EndpointID {
	seen := map[catalog.EndpointID]bool{primary: true}
	var out []catalog.EndpointID
	for _, id := range fallbacks {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// sleepCtx blocks for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
