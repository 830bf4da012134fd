package config

import (
	"os"
	"path/filepath"
	"testing"
)

// clearProviderEnv keeps ambient API keys out of a test's view.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, v := range envKeys {
		t.Setenv(v, "")
	}
}

func TestDefaults(t *testing.T) {
	clearProviderEnv(t)

	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Policy.MaxRetries != 3 || cfg.Policy.BackoffBase != 2.0 || cfg.Policy.MaxWaitSeconds != 60 {
		t.Errorf("policy defaults = %+v", cfg.Policy)
	}
	if cfg.Policy.FallbackStrategy != "sequential" || !cfg.Policy.EnableContextFallback {
		t.Errorf("fallback defaults = %+v", cfg.Policy)
	}
	if !cfg.Ledger.Enabled || cfg.Ledger.PruneAfterDays != 30 {
		t.Errorf("ledger defaults = %+v", cfg.Ledger)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging level = %q, want info", cfg.Logging.Level)
	}
	if len(cfg.Providers) != 0 {
		t.Errorf("providers = %v, want none without env keys", cfg.Providers)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	clearProviderEnv(t)

	path := filepath.Join(t.TempDir(), "switchyard.json")
	body := `{
		"policy": {"maxRetries": 5, "fallbackStrategy": "smart", "enableContextFallback": false},
		"ledger": {"enabled": false},
		"providers": {"openai": {"apiKey": "sk-file"}}
	}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Policy.MaxRetries != 5 || cfg.Policy.FallbackStrategy != "smart" {
		t.Errorf("policy = %+v", cfg.Policy)
	}
	if cfg.Policy.EnableContextFallback {
		t.Error("enableContextFallback = true, file says false")
	}
	if cfg.Ledger.Enabled {
		t.Error("ledger enabled = true, file says false")
	}
	// Fields the file omits keep their defaults.
	if cfg.Policy.BackoffBase != 2.0 || cfg.Ledger.PruneAfterDays != 30 {
		t.Errorf("omitted fields lost defaults: %+v %+v", cfg.Policy, cfg.Ledger)
	}
	if cfg.Providers["openai"].APIKey != "sk-file" {
		t.Errorf("providers = %v", cfg.Providers)
	}
}

func TestMissingExplicitPathErrors(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected an error for a missing explicit config path")
	}
}

func TestEnvFillsProviderKeys(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ANTHROPIC_API_KEY", "ant-env")

	path := filepath.Join(t.TempDir(), "switchyard.json")
	body := `{"providers": {"openai": {"apiKey": "sk-file", "baseURL": "http://localhost:11434/v1"}}}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	// A key from the file wins over the environment.
	if got := cfg.Providers["openai"]; got.APIKey != "sk-file" || got.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("openai = %+v", got)
	}
	// A provider absent from the file appears when its env key is set.
	if got := cfg.Providers["anthropic"]; got.APIKey != "ant-env" {
		t.Errorf("anthropic = %+v", got)
	}
	if _, ok := cfg.Providers["xai"]; ok {
		t.Error("xai provider appeared without a key")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearProviderEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "switchyard.json")
	cfg := Default()
	cfg.Policy.MaxRetries = 7
	cfg.Providers["xai"] = ProviderConfig{APIKey: "xai-key"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if got.Policy.MaxRetries != 7 || got.Providers["xai"].APIKey != "xai-key" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestBackupRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switchyard.json")

	for i := 0; i < 3; i++ {
		cfg := Default()
		cfg.Policy.MaxRetries = i
		if err := BackupAndWriteJSON(path, cfg, 3); err != nil {
			t.Fatalf("BackupAndWriteJSON #%d: %v", i, err)
		}
	}

	backups := ListBackups(path)
	if len(backups) != 2 {
		t.Fatalf("ListBackups = %d entries, want 2", len(backups))
	}
	if backups[0].Index != 0 {
		t.Errorf("newest backup index = %d, want 0", backups[0].Index)
	}

	if err := RestoreBackup(path, 0); err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom after restore: %v", err)
	}
	// The newest backup held the second write.
	if cfg.Policy.MaxRetries != 1 {
		t.Errorf("restored maxRetries = %d, want 1", cfg.Policy.MaxRetries)
	}
}
