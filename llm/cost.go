package llm

import "github.com/switchyard-ai/switchyard/catalog"

// Cost is the USD price of one request, split by direction.
type Cost struct {
	InputUSD  float64
	OutputUSD float64
	TotalUSD  float64
}

// CalculateCost prices a completed request from per-1M-token rates.
// Unknown pricing yields a zero cost, never an error.
func CalculateCost(p catalog.Pricing, inputTokens, outputTokens int) Cost {
	in := float64(inputTokens) / 1_000_000 * p.InputPerMTok
	out := float64(outputTokens) / 1_000_000 * p.OutputPerMTok
	return Cost{
		InputUSD:  in,
		OutputUSD: out,
		TotalUSD:  in + out,
	}
}

// EstimateInputCost prices an estimated input before the call is made.
func EstimateInputCost(p catalog.Pricing, estimatedTokens int) float64 {
	return float64(estimatedTokens) / 1_000_000 * p.InputPerMTok
}
