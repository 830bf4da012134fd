// Package selector picks the next endpoint after a failure, according to a
// configurable fallback strategy.
package selector

import (
	"fmt"
	"math"
	"strings"

	"github.com/switchyard-ai/switchyard/catalog"
	"github.com/switchyard-ai/switchyard/llm"

	. "github.com/switchyard-ai/switchyard/internal/logging"
)

// Strategy names a fallback ordering policy.
type Strategy string

const (
	// Sequential walks the caller's fallback chain in order.
	Sequential Strategy = "sequential"
	// Smart reorders the chain using the failure type: context overflows
	// prefer the smallest sufficient window, rate limits prefer a
	// different provider.
	Smart Strategy = "smart"
	// CostOptimized picks the cheapest remaining candidate by blended
	// per-1K-token price.
	CostOptimized Strategy = "cost"
)

// ParseStrategy converts a config string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case Sequential, "":
		return Sequential, nil
	case Smart:
		return Smart, nil
	case CostOptimized, "cost_optimized", "cost-optimized":
		return CostOptimized, nil
	}
	return "", fmt.Errorf("unknown fallback strategy %q (want sequential, smart or cost)", s)
}

// Registry is the catalog surface the strategies consult.
type Registry interface {
	ContextOf(catalog.EndpointID) catalog.ContextProfile
	CostOf(catalog.EndpointID) (perK float64, ok bool)
}

// Metadata carries per-call facts a strategy may weigh.
type Metadata struct {
	// EstimatedTokens is the input size, used by Smart after a context
	// overflow to find a window that actually holds it.
	EstimatedTokens int
}

// Selector applies one strategy over a shrinking candidate list.
type Selector struct {
	strategy Strategy
	registry Registry
}

// New returns a Selector. Unknown strategies degrade to Sequential.
func New(strategy Strategy, registry Registry) *Selector {
	switch strategy {
	case Sequential, Smart, CostOptimized:
	default:
		L_warn("selector: unknown strategy, using sequential", "strategy", strategy)
		strategy = Sequential
	}
	return &Selector{strategy: strategy, registry: registry}
}

// Strategy returns the active strategy.
func (s *Selector) Strategy() Strategy {
	return s.strategy
}

// SelectNext picks the next endpoint to try after failed errored with
// errType. candidates is the remaining untried chain, in caller order.
// ok is false when no candidate is left, which callers treat as exhaustion.
func (s *Selector) SelectNext(failed catalog.EndpointID, candidates []catalog.EndpointID, errType llm.ErrorType, meta Metadata) (next catalog.EndpointID, ok bool) {
	if len(candidates) == 0 {
		return "", false
	}
	switch s.strategy {
	case Smart:
		return s.selectSmart(failed, candidates, errType, meta), true
	case CostOptimized:
		return s.selectCheapest(candidates), true
	default:
		return candidates[0], true
	}
}

// selectSmart keys off the failure type. Context overflows pick the
// smallest window that still holds the input, so escalation stays cheap.
// Rate limits pick the first candidate on a different provider, since
// siblings usually share the throttled quota. Anything else falls through
// to chain order.
func (s *Selector) selectSmart(failed catalog.EndpointID, candidates []catalog.EndpointID, errType llm.ErrorType, meta Metadata) catalog.EndpointID {
	switch errType {
	case llm.ErrorContextExceeded:
		if meta.EstimatedTokens > 0 {
			best := catalog.EndpointID("")
			bestWindow := 0
			for _, id := range candidates {
				w := s.registry.ContextOf(id).ContextWindow
				if w < meta.EstimatedTokens {
					continue
				}
				if bestWindow == 0 || w < bestWindow {
					best = id
					bestWindow = w
				}
			}
			if best != "" {
				return best
			}
		}
	case llm.ErrorRateLimited:
		for _, id := range candidates {
			if id.Provider() != failed.Provider() {
				return id
			}
		}
	}
	return candidates[0]
}

// selectCheapest returns the candidate with the lowest blended per-1K cost.
// Endpoints with unknown pricing rank last; ties keep chain order.
func (s *Selector) selectCheapest(candidates []catalog.EndpointID) catalog.EndpointID {
	best := candidates[0]
	bestCost := math.Inf(1)
	if c, ok := s.registry.CostOf(best); ok {
		bestCost = c
	}
	for _, id := range candidates[1:] {
		cost := math.Inf(1)
		if c, ok := s.registry.CostOf(id); ok {
			cost = c
		}
		if cost < bestCost {
			best = id
			bestCost = cost
		}
	}
	return best
}
