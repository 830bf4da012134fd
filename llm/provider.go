// Package llm defines the invocation boundary: the Invoker capability every
// provider adapter implements, the error taxonomy and keyword classifier the
// orchestrator consumes, and per-request cost arithmetic.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/switchyard-ai/switchyard/catalog"
)

// Request is one outward model call.
type Request struct {
	Endpoint  catalog.EndpointID
	Input     string
	System    string
	MaxTokens int // output budget; adapters fall back to a provider default when zero
}

// Response is the provider's answer plus the usage the caller needs for
// budgeting and cost accounting. Token counts are provider-reported.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// Invoker performs the external model call. Implementations block until the
// provider answers and honor ctx cancellation. Errors come back raw; the
// caller classifies them.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// ProviderConfig configures one provider adapter.
type ProviderConfig struct {
	// Type selects the wire protocol: "anthropic", "openai", or "xai".
	// Defaults to the provider name when empty, so openai-compatible hosts
	// (ollama, openrouter, groq) set Type "openai" plus a BaseURL.
	Type    string `json:"type,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
}

// ErrNotConfigured indicates no adapter exists for an endpoint's provider.
type ErrNotConfigured struct {
	Provider string
}

func (e ErrNotConfigured) Error() string {
	return fmt.Sprintf("provider %s is not configured", e.Provider)
}
