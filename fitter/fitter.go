// Package fitter estimates request token counts and checks them against
// endpoint context windows, proposing larger-window candidates when an
// input does not fit.
package fitter

import (
	"sort"

	"github.com/switchyard-ai/switchyard/catalog"
)

// SafetyMargin pads input estimates when budgeting output tokens, to absorb
// tokenizer variance across model families.
const SafetyMargin = 1.2

// outputFloor keeps a minimum output budget even when the input dominates
// the window.
const outputFloor = 100

// ContextSource is the catalog surface the fitter consults.
type ContextSource interface {
	ContextOf(catalog.EndpointID) catalog.ContextProfile
	AllEndpoints() []catalog.EndpointID
}

// Fit is the outcome of checking one input against one endpoint.
type Fit struct {
	Fits            bool
	EstimatedTokens int
	MaxContext      int
}

// Fitter answers "does this input fit this endpoint" and "where would it
// fit". It is stateless apart from the lazily-loaded tokenizer, so checks
// are idempotent: the same input and endpoint always yield the same Fit.
type Fitter struct {
	registry ContextSource
	est      *Estimator
}

// Option configures a Fitter.
type Option func(*Fitter)

// WithEstimator replaces the shared tiktoken estimator.
func WithEstimator(est *Estimator) Option {
	return func(f *Fitter) { f.est = est }
}

// New returns a Fitter over the given registry.
func New(registry ContextSource, opts ...Option) *Fitter {
	f := &Fitter{registry: registry, est: sharedEstimator()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// EstimateTokens returns the token count the input would consume on the
// endpoint. Estimation never fails; it degrades to a chars/4 heuristic.
func (f *Fitter) EstimateTokens(input string, id catalog.EndpointID) int {
	_ = id // every family currently estimates with the same encoding
	return f.est.Count(input)
}

// CheckFits estimates the input and compares it to the endpoint's context
// window. Endpoints with no known window never fit, so unknown endpoints
// fail closed rather than sending an input that may be rejected.
func (f *Fitter) CheckFits(input string, id catalog.EndpointID) Fit {
	est := f.EstimateTokens(input, id)
	max := f.registry.ContextOf(id).ContextWindow
	return Fit{
		Fits:            max > 0 && est <= max,
		EstimatedTokens: est,
		MaxContext:      max,
	}
}

// LargerContextCandidates returns every registry endpoint whose context
// window holds requiredTokens, ordered smallest window first so callers
// escalate no further than necessary. Ties keep registry order.
func (f *Fitter) LargerContextCandidates(requiredTokens int) []catalog.EndpointID {
	var out []catalog.EndpointID
	for _, id := range f.registry.AllEndpoints() {
		if w := f.registry.ContextOf(id).ContextWindow; w > 0 && w >= requiredTokens {
			out = append(out, id)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return f.registry.ContextOf(out[i]).ContextWindow < f.registry.ContextOf(out[j]).ContextWindow
	})
	return out
}

// LargestContext returns the endpoint with the biggest context window in
// the registry, for "nothing fits" diagnostics.
func (f *Fitter) LargestContext() (catalog.EndpointID, int) {
	var bestID catalog.EndpointID
	var best int
	for _, id := range f.registry.AllEndpoints() {
		if w := f.registry.ContextOf(id).ContextWindow; w > best {
			best = w
			bestID = id
		}
	}
	return bestID, best
}

// CapOutputTokens returns a safe output-token budget for the endpoint:
// whatever the window leaves after the padded input estimate, capped by the
// endpoint's own output limit.
func (f *Fitter) CapOutputTokens(id catalog.EndpointID, estimatedInput int) int {
	prof := f.registry.ContextOf(id)
	if prof.ContextWindow <= 0 {
		return prof.MaxOutputTokens
	}
	safeInput := int(float64(estimatedInput) * SafetyMargin)
	available := prof.ContextWindow - safeInput
	if available < outputFloor {
		available = outputFloor
	}
	if prof.MaxOutputTokens > 0 && prof.MaxOutputTokens < available {
		return prof.MaxOutputTokens
	}
	return available
}
