package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestEndpointIDParts(t *testing.T) {
	tests := []struct {
		id       EndpointID
		provider string
		model    string
		valid    bool
	}{
		{"openai/gpt-4o-mini", "openai", "gpt-4o-mini", true},
		{"anthropic/claude-sonnet-4", "anthropic", "claude-sonnet-4", true},
		{"ollama/llama3.1", "ollama", "llama3.1", true},
		{"no-slash", "", "", false},
		{"/model-only", "", "model-only", false},
		{"provider-only/", "provider-only", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			if got := tt.id.Provider(); got != tt.provider {
				t.Errorf("Provider() = %q, want %q", got, tt.provider)
			}
			if got := tt.id.Model(); got != tt.model {
				t.Errorf("Model() = %q, want %q", got, tt.model)
			}
			if got := tt.id.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestMakeID(t *testing.T) {
	id := MakeID("openai", "gpt-4o")
	if id != "openai/gpt-4o" {
		t.Errorf("MakeID = %q, want openai/gpt-4o", id)
	}
	if !id.Valid() {
		t.Error("MakeID result should be valid")
	}
}

func TestPricing(t *testing.T) {
	p := Pricing{InputPerMTok: 3.0, OutputPerMTok: 15.0}
	if !p.Known() {
		t.Error("pricing with rates should be known")
	}
	// (3 + 15) / 2 per 1M = 9 per 1M = 0.009 per 1K
	if got := p.BlendedPer1K(); got != 0.009 {
		t.Errorf("BlendedPer1K = %v, want 0.009", got)
	}

	var zero Pricing
	if zero.Known() {
		t.Error("zero pricing should be unknown")
	}
	if zero.BlendedPer1K() != 0 {
		t.Error("unknown pricing should blend to zero")
	}
}

func testCatalog() *Catalog {
	return New(
		Endpoint{
			ID:      "openai/gpt-4o-mini",
			Quota:   QuotaConfig{RequestsPerMinute: 5, TokensPerMinute: 1000},
			Context: ContextProfile{ContextWindow: 128000, MaxOutputTokens: 16384},
			Pricing: Pricing{InputPerMTok: 0.15, OutputPerMTok: 0.6},
		},
		Endpoint{
			ID:      "anthropic/claude-sonnet-4",
			Quota:   QuotaConfig{RequestsPerMinute: 50},
			Context: ContextProfile{ContextWindow: 200000, MaxOutputTokens: 64000},
			Pricing: Pricing{InputPerMTok: 3.0, OutputPerMTok: 15.0},
		},
		Endpoint{
			ID:      "ollama/llama3.1",
			Context: ContextProfile{ContextWindow: 131072},
		},
	)
}

func TestCatalogLookups(t *testing.T) {
	c := testCatalog()

	t.Run("known endpoint", func(t *testing.T) {
		ep, ok := c.Lookup("openai/gpt-4o-mini")
		if !ok {
			t.Fatal("expected endpoint to exist")
		}
		if ep.Context.ContextWindow != 128000 {
			t.Errorf("context window = %d, want 128000", ep.Context.ContextWindow)
		}
		if q := c.QuotaOf("openai/gpt-4o-mini"); q.RequestsPerMinute != 5 {
			t.Errorf("requestsPerMinute = %d, want 5", q.RequestsPerMinute)
		}
	})

	t.Run("unknown endpoint fails closed on context", func(t *testing.T) {
		if _, ok := c.Lookup("nosuch/model"); ok {
			t.Fatal("unexpected endpoint")
		}
		if ctx := c.ContextOf("nosuch/model"); ctx.ContextWindow != 0 {
			t.Errorf("unknown context window = %d, want 0", ctx.ContextWindow)
		}
		if q := c.QuotaOf("nosuch/model"); Limited(q.RequestsPerMinute) {
			t.Error("unknown endpoint quota should be unlimited")
		}
	})

	t.Run("cost", func(t *testing.T) {
		perK, ok := c.CostOf("anthropic/claude-sonnet-4")
		if !ok {
			t.Fatal("expected known cost")
		}
		if perK != 0.009 {
			t.Errorf("perK = %v, want 0.009", perK)
		}
		if _, ok := c.CostOf("ollama/llama3.1"); ok {
			t.Error("unpriced endpoint should report unknown cost")
		}
		if _, ok := c.CostOf("nosuch/model"); ok {
			t.Error("unknown endpoint should report unknown cost")
		}
	})
}

func TestAllEndpointsStableOrder(t *testing.T) {
	c := testCatalog()
	ids := c.AllEndpoints()
	if len(ids) != 3 {
		t.Fatalf("len = %d, want 3", len(ids))
	}
	if !sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }) {
		t.Errorf("AllEndpoints not sorted: %v", ids)
	}
	// Repeated calls return the same order.
	again := c.AllEndpoints()
	for i := range ids {
		if ids[i] != again[i] {
			t.Fatalf("order changed between calls: %v vs %v", ids, again)
		}
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if c.Len() == 0 {
		t.Fatal("embedded catalog is empty")
	}
	ep, ok := c.Lookup("openai/gpt-4o-mini")
	if !ok {
		t.Fatal("embedded catalog missing openai/gpt-4o-mini")
	}
	if ep.Context.ContextWindow != 128000 {
		t.Errorf("context window = %d, want 128000", ep.Context.ContextWindow)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endpoints.toml")
	override := `
[endpoints."openai/gpt-4o-mini".quota]
requestsPerMinute = 9

[endpoints."local/test-model".context]
contextWindow = 4096

[endpoints."local/test-model".quota]
requestsPerMinute = 2
`
	if err := os.WriteFile(path, []byte(override), 0644); err != nil {
		t.Fatalf("write overrides: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	t.Run("override wins over default", func(t *testing.T) {
		if q := c.QuotaOf("openai/gpt-4o-mini"); q.RequestsPerMinute != 9 {
			t.Errorf("requestsPerMinute = %d, want 9", q.RequestsPerMinute)
		}
		// Fields the override did not set keep the shipped values.
		if ctx := c.ContextOf("openai/gpt-4o-mini"); ctx.ContextWindow != 128000 {
			t.Errorf("context window = %d, want 128000", ctx.ContextWindow)
		}
	})

	t.Run("override can add endpoints", func(t *testing.T) {
		ep, ok := c.Lookup("local/test-model")
		if !ok {
			t.Fatal("override endpoint missing")
		}
		if ep.Context.ContextWindow != 4096 {
			t.Errorf("context window = %d, want 4096", ep.Context.ContextWindow)
		}
	})
}

func TestLoadMissingOverrides(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing override file")
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endpoints.toml")
	if err := os.WriteFile(path, []byte(`
[endpoints."openai/gpt-4o-mini".quota]
requestsPerMinute = 3
`), 0644); err != nil {
		t.Fatalf("write overrides: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if q := c.QuotaOf("openai/gpt-4o-mini"); q.RequestsPerMinute != 3 {
		t.Fatalf("requestsPerMinute = %d, want 3", q.RequestsPerMinute)
	}

	if err := os.WriteFile(path, []byte(`
[endpoints."openai/gpt-4o-mini".quota]
requestsPerMinute = 7
`), 0644); err != nil {
		t.Fatalf("rewrite overrides: %v", err)
	}
	if err := c.Reload(path); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if q := c.QuotaOf("openai/gpt-4o-mini"); q.RequestsPerMinute != 7 {
		t.Errorf("requestsPerMinute after reload = %d, want 7", q.RequestsPerMinute)
	}
}
