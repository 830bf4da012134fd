package llm

import (
	"context"
	"fmt"
	"sort"

	. "github.com/switchyard-ai/switchyard/internal/logging"
)

// Router dispatches requests to the adapter configured for the endpoint's
// provider. It is itself an Invoker, so the orchestrator needs no knowledge
// of how many providers exist.
type Router struct {
	invokers map[string]Invoker
}

// NewRouter builds adapters for every configured provider. Providers that
// fail to construct (missing keys, bad type) are logged and skipped rather
// than failing the whole router; calls to them surface a fatal error.
func NewRouter(providers map[string]ProviderConfig) *Router {
	r := &Router{invokers: make(map[string]Invoker, len(providers))}
	for name, cfg := range providers {
		inv, err := newInvoker(name, cfg)
		if err != nil {
			L_warn("llm: provider not usable", "provider", name, "error", err)
			continue
		}
		r.invokers[name] = inv
		L_debug("llm: provider configured", "provider", name, "type", typeOf(name, cfg))
	}
	return r
}

// Register adds or replaces the adapter for one provider. Useful for tests
// and embedding callers that construct adapters themselves.
func (r *Router) Register(provider string, inv Invoker) {
	r.invokers[provider] = inv
}

// Providers returns the configured provider names, sorted.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.invokers))
	for name := range r.invokers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke implements Invoker.
func (r *Router) Invoke(ctx context.Context, req Request) (*Response, error) {
	inv, ok := r.invokers[req.Endpoint.Provider()]
	if !ok {
		return nil, &FatalError{
			Endpoint: req.Endpoint,
			Cause:    ErrNotConfigured{Provider: req.Endpoint.Provider()},
		}
	}
	return inv.Invoke(ctx, req)
}

func typeOf(name string, cfg ProviderConfig) string {
	if cfg.Type != "" {
		return cfg.Type
	}
	return name
}

func newInvoker(name string, cfg ProviderConfig) (Invoker, error) {
	switch typeOf(name, cfg) {
	case "anthropic":
		return NewAnthropicInvoker(cfg)
	case "openai":
		return NewOpenAIInvoker(cfg)
	case "xai":
		return NewXAIInvoker(cfg)
	default:
		return nil, fmt.Errorf("unknown provider type %q for %s", cfg.Type, name)
	}
}
