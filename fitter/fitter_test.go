package fitter

import (
	"reflect"
	"strings"
	"testing"

	"github.com/switchyard-ai/switchyard/catalog"
)

type fakeRegistry struct {
	order    []catalog.EndpointID
	profiles map[catalog.EndpointID]catalog.ContextProfile
}

func (r *fakeRegistry) ContextOf(id catalog.EndpointID) catalog.ContextProfile {
	return r.profiles[id]
}

func (r *fakeRegistry) AllEndpoints() []catalog.EndpointID {
	return r.order
}

func testRegistry() *fakeRegistry {
	return &fakeRegistry{
		order: []catalog.EndpointID{
			"openai/gpt-4o-mini",
			"anthropic/claude-sonnet-4",
			"xai/grok-3",
			"openai/gpt-4.1",
		},
		profiles: map[catalog.EndpointID]catalog.ContextProfile{
			"openai/gpt-4o-mini":        {ContextWindow: 128000, MaxOutputTokens: 16384},
			"anthropic/claude-sonnet-4": {ContextWindow: 200000, MaxOutputTokens: 64000},
			"xai/grok-3":                {ContextWindow: 131072, MaxOutputTokens: 131072},
			"openai/gpt-4.1":            {ContextWindow: 1047576, MaxOutputTokens: 32768},
		},
	}
}

func testFitter() *Fitter {
	return New(testRegistry(), WithEstimator(HeuristicEstimator()))
}

func TestEstimateTokensHeuristic(t *testing.T) {
	f := testFitter()

	if got := f.EstimateTokens(strings.Repeat("a", 400), "openai/gpt-4o-mini"); got != 100 {
		t.Errorf("EstimateTokens(400 chars) = %d, want 100", got)
	}
	if got := f.EstimateTokens("", "openai/gpt-4o-mini"); got != 0 {
		t.Errorf("EstimateTokens(empty) = %d, want 0", got)
	}
}

func TestCheckFits(t *testing.T) {
	f := testFitter()
	small := strings.Repeat("x", 4000)         // ~1k tokens
	huge := strings.Repeat("x", 600_000)       // ~150k tokens
	gigantic := strings.Repeat("x", 6_000_000) // ~1.5M tokens

	tests := []struct {
		name     string
		input    string
		endpoint catalog.EndpointID
		fits     bool
	}{
		{"small input fits", small, "openai/gpt-4o-mini", true},
		{"huge input overflows 128k", huge, "openai/gpt-4o-mini", false},
		{"huge input fits 200k", huge, "anthropic/claude-sonnet-4", true},
		{"nothing holds 1.5M", gigantic, "openai/gpt-4.1", false},
		{"unknown endpoint fails closed", small, "nobody/mystery-model", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fit := f.CheckFits(tt.input, tt.endpoint)
			if fit.Fits != tt.fits {
				t.Errorf("CheckFits(%s) = %+v, want Fits=%v", tt.endpoint, fit, tt.fits)
			}
			if fit.EstimatedTokens != len(tt.input)/4 {
				t.Errorf("EstimatedTokens = %d, want %d", fit.EstimatedTokens, len(tt.input)/4)
			}
		})
	}

	t.Run("idempotent", func(t *testing.T) {
		a := f.CheckFits(huge, "anthropic/claude-sonnet-4")
		b := f.CheckFits(huge, "anthropic/claude-sonnet-4")
		if a != b {
			t.Errorf("repeated checks diverged: %+v vs %+v", a, b)
		}
	})
}

func TestLargerContextCandidates(t *testing.T) {
	f := testFitter()

	got := f.LargerContextCandidates(150000)
	want := []catalog.EndpointID{"anthropic/claude-sonnet-4", "openai/gpt-4.1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LargerContextCandidates(150k) = %v, want %v", got, want)
	}

	got = f.LargerContextCandidates(1)
	want = []catalog.EndpointID{
		"openai/gpt-4o-mini",
		"xai/grok-3",
		"anthropic/claude-sonnet-4",
		"openai/gpt-4.1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LargerContextCandidates(1) = %v, want ascending %v", got, want)
	}

	if got := f.LargerContextCandidates(2_000_000); len(got) != 0 {
		t.Errorf("LargerContextCandidates(2M) = %v, want none", got)
	}
}

func TestLargerContextCandidatesStableTies(t *testing.T) {
	reg := &fakeRegistry{
		order: []catalog.EndpointID{"b/two", "a/one"},
		profiles: map[catalog.EndpointID]catalog.ContextProfile{
			"b/two": {ContextWindow: 100000},
			"a/one": {ContextWindow: 100000},
		},
	}
	f := New(reg, WithEstimator(HeuristicEstimator()))

	got := f.LargerContextCandidates(50000)
	want := []catalog.EndpointID{"b/two", "a/one"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("equal windows should keep registry order: got %v, want %v", got, want)
	}
}

func TestLargestContext(t *testing.T) {
	f := testFitter()

	id, window := f.LargestContext()
	if id != "openai/gpt-4.1" || window != 1047576 {
		t.Errorf("LargestContext() = (%s, %d), want (openai/gpt-4.1, 1047576)", id, window)
	}
}

func TestCapOutputTokens(t *testing.T) {
	f := testFitter()

	tests := []struct {
		name     string
		endpoint catalog.EndpointID
		input    int
		want     int
	}{
		// 128000 - 1000*1.2 leaves plenty, capped by the 16384 output limit.
		{"capped by output limit", "openai/gpt-4o-mini", 1000, 16384},
		// 128000 - 100000*1.2 = 8000, below the output limit.
		{"capped by window remainder", "openai/gpt-4o-mini", 100000, 8000},
		// Input swamps the window, keep the floor.
		{"output floor", "openai/gpt-4o-mini", 127000, 100},
		// No known window, fall back to the declared output limit.
		{"unknown window", "nobody/mystery-model", 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.CapOutputTokens(tt.endpoint, tt.input); got != tt.want {
				t.Errorf("CapOutputTokens(%s, %d) = %d, want %d",
					tt.endpoint, tt.input, got, tt.want)
			}
		})
	}
}
