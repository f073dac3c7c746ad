package config_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dynpower/internal/config"
	"dynpower/internal/logging"
	"dynpower/internal/power"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(tempHome, "run"))

	cfg, path, exists, err := config.Load(filepath.Join(tempHome, "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if path != filepath.Join(tempHome, "missing.toml") {
		t.Fatalf("unexpected resolved path %q", path)
	}
	if cfg.PollInterval() != 2*time.Second {
		t.Fatalf("unexpected poll interval %s", cfg.PollInterval())
	}
	if got := cfg.Thresholds(); got.Low != 1.0 || got.High != 2.0 {
		t.Fatalf("unexpected thresholds %+v", got)
	}
	if cfg.Applier.Backend != config.BackendPowerProfilesCtl || cfg.Applier.Retries != 2 {
		t.Fatalf("unexpected applier defaults %+v", cfg.Applier)
	}
	if cfg.RetryDelay() != 250*time.Millisecond {
		t.Fatalf("unexpected retry delay %s", cfg.RetryDelay())
	}
	if cfg.Paths.SessionSocket != filepath.Join(tempHome, "run", "dynpower", "session.sock") {
		t.Fatalf("unexpected session socket %q", cfg.Paths.SessionSocket)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, ".local", "state", "dynpower") {
		t.Fatalf("unexpected state dir %q", cfg.Paths.StateDir)
	}
	table := cfg.ProfileTable()
	if table.Lookup(power.SourceAC, power.LoadHigh) != power.ProfilePerformance {
		t.Fatalf("unexpected AC high profile")
	}
	if table.Lookup(power.SourceBattery, power.LoadHigh) != power.ProfilePowersave {
		t.Fatalf("unexpected battery profile")
	}
}

func TestLoadDaemonRoleUsesSystemPaths(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, _, _, err := config.LoadFor(config.RoleDaemon, filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadFor returned error: %v", err)
	}
	if cfg.Role() != config.RoleDaemon {
		t.Fatalf("unexpected role %q", cfg.Role())
	}
	if cfg.Paths.RunDir != "/run/dynpower" || cfg.Paths.StateDir != "/var/lib/dynpower" {
		t.Fatalf("unexpected daemon paths %+v", cfg.Paths)
	}
	if cfg.LockPath() != "/run/dynpower/dynpowerd.lock" {
		t.Fatalf("unexpected lock path %q", cfg.LockPath())
	}
	if cfg.StateDBPath() != "/var/lib/dynpower/state.db" {
		t.Fatalf("unexpected state db %q", cfg.StateDBPath())
	}
}

func TestLoadCustomTOML(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	configPath := filepath.Join(tempHome, "config.toml")
	writeFile(t, configPath, `
[general]
poll_interval = 5

[power.profiles.on_ac]
low = "power-saver"
medium = "balance"
high = "perf"

[power.profiles.on_battery]
default = "balanced"

[power.load_thresholds]
low = 3.0
high = 3.05

[[process_overrides]]
process_name = "steam"
priority = 10
active_profile = "performance"

[[process_overrides]]
name = "builds"
process_name = "cc1plus"
priority = 5
mode = "InhibitPowersave"

[features.hooks.Screen_Refresh]
enabled = true
ac = ["kscreen-doctor", " output.1.mode.2 "]

[paths]
state_dir = "~/dynpower-state"

[logging]
format = "JSON"
level = "DEBUG"
`)

	cfg, _, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.General.PollInterval != 5 {
		t.Fatalf("unexpected poll interval %d", cfg.General.PollInterval)
	}
	if cfg.Power.Profiles.OnAC.Low != "powersave" || cfg.Power.Profiles.OnAC.Medium != "balanced" || cfg.Power.Profiles.OnAC.High != "performance" {
		t.Fatalf("profile aliases not normalized: %+v", cfg.Power.Profiles.OnAC)
	}
	thresholds := cfg.Thresholds()
	if thresholds.Low != 3.0 || thresholds.High < 3.1-1e-9 {
		t.Fatalf("expected high threshold clamped to low+gap, got %+v", thresholds)
	}
	rules := cfg.Rules()
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].Name != "steam" || rules[0].Mode != power.ModePerformance || rules[0].Priority != 10 {
		t.Fatalf("unexpected first rule %+v", rules[0])
	}
	if rules[1].Name != "builds" || rules[1].Mode != power.ModeInhibitPowersave {
		t.Fatalf("unexpected second rule %+v", rules[1])
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, "dynpower-state") {
		t.Fatalf("state dir not expanded: %q", cfg.Paths.StateDir)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging not normalized: %+v", cfg.Logging)
	}
	hook, ok := cfg.Features.Hooks["screen_refresh"]
	if !ok {
		t.Fatalf("expected lowercased hook name, got %+v", cfg.Features.Hooks)
	}
	if got := hook.Command(power.SourceAC); len(got) != 2 || got[1] != "output.1.mode.2" {
		t.Fatalf("unexpected AC hook command %q", got)
	}
	if got := hook.Command(power.SourceBattery); len(got) != 0 {
		t.Fatalf("expected no battery command, got %q", got)
	}
}

func TestLoadLegacyYAML(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	configPath := filepath.Join(tempHome, "dynamic-power.yaml")
	writeFile(t, configPath, `
general:
  poll_interval: 3
power:
  load_thresholds:
    low: 0.5
    high: 1.5
  profiles:
    on_battery:
      default: power-saver
features:
  auto_panel_overdrive: true
process_overrides:
  - process_name: obs
    active_profile: balanced
    priority: 1
`)

	cfg, _, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.General.PollInterval != 3 {
		t.Fatalf("unexpected poll interval %d", cfg.General.PollInterval)
	}
	if got := cfg.Thresholds(); got.Low != 0.5 || got.High != 1.5 {
		t.Fatalf("unexpected thresholds %+v", got)
	}
	if !cfg.Features.PanelOverdrive.Enabled {
		t.Fatal("expected legacy auto_panel_overdrive to enable panel overdrive")
	}
	if cfg.Power.Profiles.OnAC.High != "performance" {
		t.Fatalf("expected defaults preserved for unset keys, got %q", cfg.Power.Profiles.OnAC.High)
	}
	if rules := cfg.Rules(); len(rules) != 1 || rules[0].Name != "obs" || rules[0].Mode != power.ModeBalanced {
		t.Fatalf("unexpected rules %+v", rules)
	}
}

func TestLoadEmptyYAMLUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "empty.yaml")
	writeFile(t, configPath, "")
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.General.PollInterval != 2 {
		t.Fatalf("unexpected poll interval %d", cfg.General.PollInterval)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"poll interval", "[general]\npoll_interval = -1\n", "poll_interval"},
		{"poll interval ceiling", "[general]\npoll_interval = 10000000000\n", "poll_interval"},
		{"threshold nan", "[power.load_thresholds]\nlow = nan\n", "power.load_thresholds"},
		{"threshold inf", "[power.load_thresholds]\nhigh = inf\n", "power.load_thresholds"},
		{"profile", "[power.profiles.on_ac]\nlow = \"turbo\"\n", "power.profiles.on_ac.low"},
		{"override without process", "[[process_overrides]]\nmode = \"Performance\"\n", "process_name"},
		{"override without mode", "[[process_overrides]]\nprocess_name = \"x\"\n", "mode or active_profile"},
		{"override dynamic", "[[process_overrides]]\nprocess_name = \"x\"\nmode = \"Dynamic\"\n", "Dynamic"},
		{"backend", "[applier]\nbackend = \"tlp\"\n", "applier.backend"},
		{"retries", "[applier]\nretries = 11\n", "applier.retries"},
		{"epp missing", "[epp]\nenabled = true\nvalues = { powersave = \"power\", balanced = \"\" }\n", "epp.values"},
		{"panel command", "[features.panel_overdrive]\nenabled = true\ncommand = []\n", "panel_overdrive.command"},
		{"empty hook", "[features.hooks.refresh]\nenabled = true\n", "features.hooks.refresh"},
		{"call timeout", "[ipc]\ncall_timeout_ms = 10\n", "call_timeout_ms"},
		{"log format", "[logging]\nformat = \"xml\"\n", "logging.format"},
		{"component level", "[logging.component_levels]\narbiter = \"loud\"\n", "component_levels.arbiter"},
		{"metrics listen", "[metrics]\nlisten = \"9100\"\n", "metrics.listen"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			configPath := filepath.Join(t.TempDir(), "config.toml")
			writeFile(t, configPath, tc.content)
			_, _, _, err := config.Load(configPath)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestEPPValue(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, configPath, "[epp]\nenabled = true\n[epp.values]\npower-saver = \"power\"\nbalanced = \"balance_power\"\nperformance = \"performance\"\n")
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if value, ok := cfg.EPPValue(power.ProfilePowersave); !ok || value != "power" {
		t.Fatalf("unexpected powersave EPP %q %v", value, ok)
	}
	if value, ok := cfg.EPPValue(power.ProfileBalanced); !ok || value != "balance_power" {
		t.Fatalf("unexpected balanced EPP %q %v", value, ok)
	}
}

func TestSampleConfigLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config did not load: exists=%v err=%v", exists, err)
	}
}

func TestStoreSwap(t *testing.T) {
	first := config.Default()
	second := config.Default()
	second.General.PollInterval = 9

	store := config.NewStore(&first)
	if store.Current() != &first {
		t.Fatal("expected initial snapshot")
	}
	if prev := store.Swap(&second); prev != &first {
		t.Fatal("expected previous snapshot returned")
	}
	if store.Current().General.PollInterval != 9 || store.Version() != 1 {
		t.Fatalf("unexpected store state version=%d", store.Version())
	}
	if store.Swap(nil) != &second || store.Version() != 1 {
		t.Fatal("nil swap must be ignored")
	}
}

func TestWatcherReloadsAndKeepsLastGood(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	writeFile(t, configPath, "[general]\npoll_interval = 2\n")

	watcher := config.NewWatcher(configPath, config.RoleSession, logging.NewNop())
	watcher.SetDebounce(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// Invalid content never produces a snapshot.
	writeFile(t, configPath, "[general]\npoll_interval = 0.5\n")
	watcher.Reload()
	select {
	case cfg := <-watcher.Updates():
		t.Fatalf("unexpected snapshot from invalid file: %+v", cfg.General)
	case <-time.After(200 * time.Millisecond):
	}

	writeFile(t, configPath, "[general]\npoll_interval = 7\n")
	watcher.Reload()
	select {
	case cfg := <-watcher.Updates():
		if cfg.General.PollInterval != 7 {
			t.Fatalf("unexpected reloaded poll interval %d", cfg.General.PollInterval)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
