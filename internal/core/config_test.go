package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ─── DefaultConfig ──────────────────────────────────────────────────────────

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 1790 {
		t.Errorf("default Port = %d, want 1790", cfg.Server.Port)
	}
	if !cfg.Bus.Embedded {
		t.Error("expected Bus.Embedded = true by default")
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("default Store.Backend = %q, want file", cfg.Store.Backend)
	}
	if cfg.Defaults.ActionDelaySeconds != 120 {
		t.Errorf("default ActionDelaySeconds = %d, want 120", cfg.Defaults.ActionDelaySeconds)
	}
	if cfg.Platform.RequestTimeout != 10*time.Second {
		t.Errorf("default RequestTimeout = %v, want 10s", cfg.Platform.RequestTimeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("default logging = %+v", cfg.Logging)
	}
}

func TestDefaultConfig_ModulesPresent(t *testing.T) {
	cfg := DefaultConfig()
	for _, name := range []string{"webhook_guard", "blocklist_enforcer", "role_guard"} {
		mod, ok := cfg.Modules[name]
		if !ok {
			t.Errorf("missing module %q in default config", name)
		}
		if !mod.Enabled {
			t.Errorf("expected module %q to be enabled", name)
		}
	}
}

func TestDefaultConfig_Validates(t *testing.T) {
	_, errs := DefaultConfig().Validate()
	if len(errs) != 0 {
		t.Errorf("default config should validate, got %v", errs)
	}
}

// ─── LoadConfig ─────────────────────────────────────────────────────────────

func TestLoadConfig_EmptyPath_ReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\") error: %v", err)
	}
	if cfg.Server.Port != 1790 {
		t.Errorf("Port = %d, want default", cfg.Server.Port)
	}
}

func TestLoadConfig_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig(missing) error: %v", err)
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("Backend = %q, want file", cfg.Store.Backend)
	}
}

func TestLoadConfig_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guildshield.yaml")
	content := `
server:
  port: 9000
store:
  backend: redis
  redis:
    addr: "127.0.0.1:6379"
platform:
  request_timeout: 3s
defaults:
  action_delay_seconds: 300
  protected_roles: ["Moderator"]
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Platform.RequestTimeout != 3*time.Second {
		t.Errorf("RequestTimeout = %v, want 3s", cfg.Platform.RequestTimeout)
	}
	d := cfg.PolicyDefaults()
	if d.ActionDelaySeconds != 300 || len(d.ProtectedRoles) != 1 || d.ProtectedRoles[0] != "Moderator" {
		t.Errorf("PolicyDefaults() = %+v", d)
	}
	if cfg.LogLevel() != "debug" {
		t.Errorf("LogLevel() = %q", cfg.LogLevel())
	}
	// untouched sections keep defaults
	if !cfg.Bus.Embedded {
		t.Error("Bus.Embedded should keep its default")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("server: [unclosed"), 0o600)
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GUILDSHIELD_API_KEY", "0123456789abcdef0123")
	t.Setenv("GUILDSHIELD_NATS_URL", "nats://bus.internal:4222")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.ValidateAPIKey("0123456789abcdef0123") {
		t.Error("API key from env not applied")
	}
	if cfg.Bus.Embedded || cfg.Bus.URL != "nats://bus.internal:4222" {
		t.Errorf("Bus = %+v, want external URL", cfg.Bus)
	}
}

// ─── Validate ───────────────────────────────────────────────────────────────

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"delay too large", func(c *Config) { c.Defaults.ActionDelaySeconds = 4999999 }, "ActionDelaySeconds"},
		{"delay too small", func(c *Config) { c.Defaults.ActionDelaySeconds = 4 }, "ActionDelaySeconds"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "Backend"},
		{"redis without addr", func(c *Config) { c.Store.Backend = "redis" }, "Redis.Addr"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "Level"},
		{"external bus without url", func(c *Config) { c.Bus.Embedded = false; c.Bus.URL = "" }, "Bus.URL"},
		{"short api key", func(c *Config) { c.Server.APIKeys = []string{"short"} }, "APIKeys"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			_, errs := cfg.Validate()
			found := false
			for _, e := range errs {
				if strings.Contains(e, tc.field) {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() errs = %v, want one mentioning %s", errs, tc.field)
			}
		})
	}
}

func TestValidate_WarnsWithoutAPIKeys(t *testing.T) {
	warnings, _ := DefaultConfig().Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "api_keys") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected api_keys warning, got %v", warnings)
	}
}

func TestIsModuleEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Modules["role_guard"] = ModuleConfig{Enabled: false}
	if cfg.IsModuleEnabled("role_guard") {
		t.Error("role_guard should be disabled")
	}
	if !cfg.IsModuleEnabled("unknown_module") {
		t.Error("unknown modules default to enabled")
	}
}

func TestGetModuleSetting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Modules["webhook_guard"] = ModuleConfig{Enabled: true, Settings: map[string]interface{}{"x": 3}}
	if got := cfg.GetModuleSetting("webhook_guard", "x", 0); got != 3 {
		t.Errorf("GetModuleSetting = %v, want 3", got)
	}
	if got := cfg.GetModuleSetting("webhook_guard", "missing", "d"); got != "d" {
		t.Errorf("GetModuleSetting default = %v", got)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultConfig()
	cfg.Defaults.ActionDelaySeconds = 45
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Defaults.ActionDelaySeconds != 45 {
		t.Errorf("ActionDelaySeconds = %d, want 45", got.Defaults.ActionDelaySeconds)
	}
}
