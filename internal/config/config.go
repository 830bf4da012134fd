package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/switchyard-ai/switchyard/internal/paths"
)

// Config represents the merged switchyard configuration
type Config struct {
	Logging   LoggingConfig             `json:"logging"`
	Policy    PolicyConfig              `json:"policy"`
	Catalog   CatalogConfig             `json:"catalog"`
	Ledger    LedgerConfig              `json:"ledger"`
	Providers map[string]ProviderConfig `json:"providers"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	ShowCaller bool   `json:"showCaller,omitempty"`
}

// PolicyConfig holds the default retry/fallback policy for calls that do not
// override it. Field meanings match orchestrator.PolicyConfig.
type PolicyConfig struct {
	MaxRetries            int     `json:"maxRetries"`
	BackoffBase           float64 `json:"backoffBase"`
	BackoffMultiplier     float64 `json:"backoffMultiplier,omitempty"`
	MaxWaitSeconds        float64 `json:"maxWaitSeconds"`
	MinWaitBeforeFallback float64 `json:"minWaitBeforeFallback"`
	FallbackStrategy      string  `json:"fallbackStrategy"`
	EnableContextFallback bool    `json:"enableContextFallback"`
}

type CatalogConfig struct {
	// Overrides points at a TOML endpoint override file merged over the
	// shipped defaults.
	Overrides string `json:"overrides,omitempty"`
	Watch     bool   `json:"watch,omitempty"`
}

type LedgerConfig struct {
	Enabled             bool   `json:"enabled"`
	Path                string `json:"path,omitempty"`
	PruneAfterDays      int    `json:"pruneAfterDays"`
	MaintenanceSchedule string `json:"maintenanceSchedule,omitempty"`
}

// ProviderConfig configures one provider adapter. Type defaults to the
// provider name; openai-compatible hosts set type "openai" plus a baseURL.
type ProviderConfig struct {
	Type    string `json:"type,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
}

// envKeys maps provider names to the conventional env vars for their keys.
var envKeys = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"xai":       "XAI_API_KEY",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Policy: PolicyConfig{
			MaxRetries:            3,
			BackoffBase:           2.0,
			MaxWaitSeconds:        60,
			FallbackStrategy:      "sequential",
			EnableContextFallback: true,
		},
		Ledger: LedgerConfig{
			Enabled:        true,
			PruneAfterDays: 30,
		},
		Providers: map[string]ProviderConfig{},
	}
}

// Load reads the active config file: ./switchyard.json if present, otherwise
// ~/.switchyard/switchyard.json, otherwise the defaults. File values override
// defaults; provider keys found in the environment fill any left empty.
func Load() (*Config, error) {
	path, err := paths.ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at an explicit path. An empty path yields the
// defaults plus environment overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv fills provider keys from the environment. A provider mentioned
// only by env var gets an entry, so probing works with exported keys alone.
func (c *Config) applyEnv() {
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for name, envVar := range envKeys {
		key := os.Getenv(envVar)
		if key == "" {
			continue
		}
		p := c.Providers[name]
		if p.APIKey != "" {
			continue
		}
		p.APIKey = key
		c.Providers[name] = p
	}
}

// LedgerPath resolves the usage ledger location, defaulting to
// ~/.switchyard/usage.db.
func (c *Config) LedgerPath() (string, error) {
	if c.Ledger.Path != "" {
		return paths.ExpandTilde(c.Ledger.Path)
	}
	return paths.DefaultLedgerPath()
}

// Save writes the config atomically to path. An empty path saves to the
// default location (~/.switchyard/switchyard.json).
func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = paths.DefaultConfigPath()
		if err != nil {
			return err
		}
	}
	return AtomicWriteJSON(path, c, 0600)
}
