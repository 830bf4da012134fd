package llm

import (
	"math"
	"testing"

	"github.com/switchyard-ai/switchyard/catalog"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestCalculateCost(t *testing.T) {
	pricing := catalog.Pricing{InputPerMTok: 3.0, OutputPerMTok: 15.0}

	cost := CalculateCost(pricing, 10_000, 2_000)
	if !almostEqual(cost.InputUSD, 0.03) {
		t.Errorf("InputUSD = %v, want 0.03", cost.InputUSD)
	}
	if !almostEqual(cost.OutputUSD, 0.03) {
		t.Errorf("OutputUSD = %v, want 0.03", cost.OutputUSD)
	}
	if !almostEqual(cost.TotalUSD, 0.06) {
		t.Errorf("TotalUSD = %v, want 0.06", cost.TotalUSD)
	}
}

func TestCalculateCostUnknownPricing(t *testing.T) {
	cost := CalculateCost(catalog.Pricing{}, 50_000, 10_000)
	if cost.TotalUSD != 0 {
		t.Errorf("TotalUSD = %v, want 0 for unknown pricing", cost.TotalUSD)
	}
}

func TestEstimateInputCost(t *testing.T) {
	pricing := catalog.Pricing{InputPerMTok: 2.5}
	if got := EstimateInputCost(pricing, 400_000); !almostEqual(got, 1.0) {
		t.Errorf("EstimateInputCost = %v, want 1.0", got)
	}
}
