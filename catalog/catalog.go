// Package catalog holds the static endpoint registry: per-endpoint quotas,
// context profiles, and pricing. Catalogs are read-only after construction;
// reloads swap the whole table atomically so readers never see a partial view.
package catalog

import (
	"sort"
	"strings"
	"sync"
)

// Unlimited marks a quota dimension with no provider-side ceiling.
// A zero value means "unset" and is treated the same way.
const Unlimited = -1

// EndpointID identifies a callable model endpoint as "provider/model",
// e.g. "openai/gpt-4o-mini". It is the key for every lookup in the system.
type EndpointID string

// MakeID builds an EndpointID from its parts.
func MakeID(provider, model string) EndpointID {
	return EndpointID(provider + "/" + model)
}

// Provider returns the provider part of the id ("" when malformed).
func (id EndpointID) Provider() string {
	s := string(id)
	i := strings.Index(s, "/")
	if i <= 0 {
		return ""
	}
	return s[:i]
}

// Model returns the model part of the id ("" when malformed).
func (id EndpointID) Model() string {
	s := string(id)
	i := strings.Index(s, "/")
	if i < 0 || i+1 >= len(s) {
		return ""
	}
	return s[i+1:]
}

// Valid reports whether the id has both a provider and a model part.
func (id EndpointID) Valid() bool {
	return id.Provider() != "" && id.Model() != ""
}

func (id EndpointID) String() string { return string(id) }

// QuotaConfig is the provider-imposed ceiling for one endpoint. Each
// dimension is a positive integer, or Unlimited/zero for no ceiling.
type QuotaConfig struct {
	RequestsPerMinute int `json:"requestsPerMinute,omitempty" toml:"requestsPerMinute"`
	TokensPerMinute   int `json:"tokensPerMinute,omitempty" toml:"tokensPerMinute"`
	RequestsPerDay    int `json:"requestsPerDay,omitempty" toml:"requestsPerDay"`
}

// Limited reports whether a single quota dimension carries a real ceiling.
func Limited(v int) bool { return v > 0 }

// ContextProfile is the token geometry of one endpoint.
type ContextProfile struct {
	ContextWindow   int `json:"contextWindow,omitempty" toml:"contextWindow"`
	MaxOutputTokens int `json:"maxOutputTokens,omitempty" toml:"maxOutputTokens"`
}

// Pricing is USD per million tokens, split by direction.
type Pricing struct {
	InputPerMTok  float64 `json:"inputPerMTok,omitempty" toml:"inputPerMTok"`
	OutputPerMTok float64 `json:"outputPerMTok,omitempty" toml:"outputPerMTok"`
}

// Known reports whether any pricing information exists for the endpoint.
func (p Pricing) Known() bool {
	return p.InputPerMTok > 0 || p.OutputPerMTok > 0
}

// BlendedPer1K returns a single comparable USD price per 1K tokens,
// averaging the input and output rates. Zero when pricing is unknown.
func (p Pricing) BlendedPer1K() float64 {
	if !p.Known() {
		return 0
	}
	return (p.InputPerMTok + p.OutputPerMTok) / 2 / 1000
}

// Endpoint is one catalog entry.
type Endpoint struct {
	ID      EndpointID     `json:"-" toml:"-"`
	Quota   QuotaConfig    `json:"quota,omitempty" toml:"quota"`
	Context ContextProfile `json:"context,omitempty" toml:"context"`
	Pricing Pricing        `json:"pricing,omitempty" toml:"pricing"`
	Notes   string         `json:"notes,omitempty" toml:"notes"`
}

// Catalog is the read-only endpoint registry. The zero value is unusable;
// construct with Default, Load, or New.
type Catalog struct {
	mu        sync.RWMutex
	endpoints map[EndpointID]Endpoint
	order     []EndpointID
}

// New builds an in-memory catalog from explicit endpoints. Intended for
// embedding callers and tests that do not want the shipped defaults.
func New(endpoints ...Endpoint) *Catalog {
	c := &Catalog{}
	m := make(map[EndpointID]Endpoint, len(endpoints))
	for _, ep := range endpoints {
		if !ep.ID.Valid() {
			continue
		}
		m[ep.ID] = ep
	}
	c.replace(m)
	return c
}

// replace swaps in a new endpoint table and recomputes the stable order.
func (c *Catalog) replace(endpoints map[EndpointID]Endpoint) {
	order := make([]EndpointID, 0, len(endpoints))
	for id := range endpoints {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	c.mu.Lock()
	c.endpoints = endpoints
	c.order = order
	c.mu.Unlock()
}

// Lookup returns the full entry for an endpoint.
func (c *Catalog) Lookup(id EndpointID) (Endpoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ep, ok := c.endpoints[id]
	return ep, ok
}

// QuotaOf returns the quota for an endpoint. Unknown endpoints get the zero
// quota, which every dimension treats as unlimited.
func (c *Catalog) QuotaOf(id EndpointID) QuotaConfig {
	ep, _ := c.Lookup(id)
	return ep.Quota
}

// ContextOf returns the context profile for an endpoint. Unknown endpoints
// get a zero profile, so fit checks against them fail closed.
func (c *Catalog) ContextOf(id EndpointID) ContextProfile {
	ep, _ := c.Lookup(id)
	return ep.Context
}

// CostOf returns the blended per-1K-token USD price for an endpoint.
// ok is false when the endpoint is unknown or carries no pricing.
func (c *Catalog) CostOf(id EndpointID) (perK float64, ok bool) {
	ep, found := c.Lookup(id)
	if !found || !ep.Pricing.Known() {
		return 0, false
	}
	return ep.Pricing.BlendedPer1K(), true
}

// AllEndpoints returns every endpoint id in stable (sorted) catalog order.
func (c *Catalog) AllEndpoints() []EndpointID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]EndpointID, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of endpoints in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.endpoints)
}
