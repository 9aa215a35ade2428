package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/1sec-project/guildshield/internal/core"
	"github.com/1sec-project/guildshield/internal/policy"
)

func TestSuggest(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"pol", "policy"},
		{"pub", "publish"},
		{"conf", "config"},
		{"verzion", "version"},
		{"UP", "up"},
		{"zzzzzz", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := suggest(tc.input); got != tc.want {
			t.Errorf("suggest(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestEnvConfig(t *testing.T) {
	t.Setenv("GUILDSHIELD_CONFIG", "")
	if got := envConfig(defaultConfigPath); got != defaultConfigPath {
		t.Errorf("default = %q", got)
	}
	if got := envConfig(""); got != defaultConfigPath {
		t.Errorf("empty flag = %q", got)
	}

	t.Setenv("GUILDSHIELD_CONFIG", "/etc/guildshield.yaml")
	if got := envConfig(defaultConfigPath); got != "/etc/guildshield.yaml" {
		t.Errorf("env = %q", got)
	}
	if got := envConfig("local.yaml"); got != "local.yaml" {
		t.Errorf("explicit flag should win, got %q", got)
	}
}

func TestHasFlag(t *testing.T) {
	if !hasFlag([]string{"show", "--help"}, "-h", "--help") {
		t.Error("--help not found")
	}
	if hasFlag([]string{"show", "42"}, "-h", "--help") {
		t.Error("false positive")
	}
}

func TestSelectModules(t *testing.T) {
	cfg := core.DefaultConfig()
	selectModules(cfg, "role_guard, blocklist_enforcer")
	want := map[string]bool{"webhook_guard": false, "blocklist_enforcer": true, "role_guard": true}
	for name, enabled := range want {
		if cfg.IsModuleEnabled(name) != enabled {
			t.Errorf("%s enabled = %v, want %v", name, !enabled, enabled)
		}
	}
}

func TestDefenseModulesMatchDefaultConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	for _, mod := range defenseModules() {
		if _, ok := cfg.Modules[mod.Name()]; !ok {
			t.Errorf("module %s has no default config entry", mod.Name())
		}
	}
	if len(defenseModules()) != len(cfg.Modules) {
		t.Errorf("%d modules, %d config entries", len(defenseModules()), len(cfg.Modules))
	}
}

func TestParseRoles(t *testing.T) {
	roles, err := parseRoles("10:Member, 11:Admin,")
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 2 || roles[1].ID != "11" || roles[1].Name != "Admin" {
		t.Errorf("roles = %+v", roles)
	}
	if roles, err := parseRoles(""); err != nil || len(roles) != 0 {
		t.Errorf("empty = %+v, %v", roles, err)
	}
	for _, bad := range []string{"11", ":Admin", "11:"} {
		if _, err := parseRoles(bad); err == nil {
			t.Errorf("parseRoles(%q) accepted", bad)
		}
	}
}

func TestBuildEvent(t *testing.T) {
	e, err := buildEvent(core.EventMemberUpdate, "100", "1", "", "", "3", "11:Admin", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Validate(); err != nil {
		t.Errorf("built event invalid: %v", err)
	}
	if len(e.Before.Roles) != 0 || len(e.Member.Roles) != 1 {
		t.Errorf("before %+v after %+v", e.Before, e.Member)
	}

	hook, err := buildEvent(core.EventWebhooksUpdate, "100", "1", "200", core.ChannelTypeText, "", "", "", false)
	if err != nil || hook.Validate() != nil || hook.ChannelID != "200" {
		t.Errorf("webhooks_update = %+v, %v", hook, err)
	}

	if _, err := buildEvent("", "100", "", "", "", "", "", "", false); err == nil {
		t.Error("missing -type accepted")
	}
}

func TestReadEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	body := `{"type":"member_join","guild_id":"100","owner_id":"1","member":{"id":"42","roles":[]}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	e, err := readEvent(path)
	if err != nil {
		t.Fatal(err)
	}
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Error("missing ID or timestamp not filled in")
	}
	if e.Member.ID != "42" || e.Validate() != nil {
		t.Errorf("event = %+v", e)
	}
}

func TestPrintPolicy(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	p := policy.Default()
	p.Blocklist = []string{"42"}

	var buf bytes.Buffer
	printPolicy(&buf, "100", p)
	out := buf.String()
	for _, want := range []string{"Guild 100", "120 seconds", "(system channel)", "Admin, Administrator", "42", "(none)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
