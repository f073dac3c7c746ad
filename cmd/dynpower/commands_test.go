package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dynpower/internal/daemonctl"
	"dynpower/internal/power"
	"dynpower/internal/statestore"
	"dynpower/internal/testsupport"
)

const ffmpegRule = `
[[process_overrides]]
name = "Encoding"
process_name = "ffmpeg"
priority = 10
mode = "Performance"
`

func TestStatusShowsRunningDaemonAndSession(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "[OK] Running (pid")
	requireContains(t, out, "Powersave")
	requireContains(t, out, "== Session ==")
	requireContains(t, out, "Daemon link:")
	requireContains(t, out, "[OK] Reachable")
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, []string{"status", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var snapshot daemonctl.StatusSnapshot
	if err := json.Unmarshal([]byte(out), &snapshot); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, out)
	}
	if !snapshot.DaemonRunning {
		t.Fatalf("expected running daemon in %s", out)
	}
	if snapshot.State.PowerSource != power.SourceAC {
		t.Fatalf("expected AC power source, got %q", snapshot.State.PowerSource)
	}
	if snapshot.Session == nil || !snapshot.Session.DaemonReachable {
		t.Fatalf("expected session metrics with a reachable daemon, got %+v", snapshot.Session)
	}
}

func TestStatusOfflineUsesSavedState(t *testing.T) {
	cfg, configPath := newConfigOnly(t, "")
	store := testsupport.MustOpenStateStore(t, cfg)
	err := store.Save(context.Background(), statestore.Record{
		State: power.DaemonState{
			ActiveProfile: power.ProfileBalanced,
			ApplyState:    power.ApplyConfirmed,
			PowerSource:   power.SourceAC,
			ThresholdLow:  1,
			ThresholdHigh: 2,
		},
		Reason: "dynamic medium load",
		Saved:  time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "[WARN] Not running; last saved")
	requireContains(t, out, "Balanced")
	requireContains(t, out, "dynamic medium load")
	requireContains(t, out, "[WARN] Not running")
}

func TestProfileCommandSetsManualOverride(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, []string{"profile", "performance"}, env.configPath)
	if err != nil {
		t.Fatalf("profile performance: %v", err)
	}
	requireContains(t, out, "Manual override set to Performance")
	requireContains(t, out, "Active profile: performance (manual)")

	out, _, err = runCLI(t, []string{"profile"}, env.configPath)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	requireContains(t, out, "Active profile: performance (manual)")

	out, _, err = runCLI(t, []string{"profile", "dynamic"}, env.configPath)
	if err != nil {
		t.Fatalf("profile dynamic: %v", err)
	}
	requireContains(t, out, "Manual override cleared")
	requireContains(t, out, "Active profile: powersave (dynamic)")
}

func TestProfileCommandRejectsUnknownMode(t *testing.T) {
	env := setupCLITestEnv(t, "")

	_, _, err := runCLI(t, []string{"profile", "turbo"}, env.configPath)
	if err == nil {
		t.Fatal("expected unknown mode to fail")
	}
	requireContains(t, err.Error(), "turbo")
}

func TestThresholdsAndPollInterval(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, []string{"thresholds", "3", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("thresholds: %v", err)
	}
	requireContains(t, out, "Thresholds: low 3.00 / high 3.10")

	out, _, err = runCLI(t, []string{"thresholds"}, env.configPath)
	if err != nil {
		t.Fatalf("thresholds show: %v", err)
	}
	requireContains(t, out, "low 3.00 / high 3.10")

	out, _, err = runCLI(t, []string{"poll-interval", "0"}, env.configPath)
	if err != nil {
		t.Fatalf("poll-interval: %v", err)
	}
	requireContains(t, out, "Poll interval: 1s")

	if _, _, err := runCLI(t, []string{"thresholds", "1"}, env.configPath); err == nil {
		t.Fatal("expected a single threshold argument to be rejected")
	}
	if _, _, err := runCLI(t, []string{"poll-interval", "soon"}, env.configPath); err == nil {
		t.Fatal("expected a non-numeric interval to be rejected")
	}
}

func TestOverrideCommandForwardsThroughSession(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, []string{"override", "balanced"}, env.configPath)
	if err != nil {
		t.Fatalf("override balanced: %v", err)
	}
	requireContains(t, out, "Override: Balanced")

	out, _, err = runCLI(t, []string{"override"}, env.configPath)
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	requireContains(t, out, "Override: Balanced")

	waitFor(t, 3*time.Second, func() bool {
		return env.daemon.DaemonState().ActiveProfile == power.ProfileBalanced
	})
}

func TestMatchesPushAndList(t *testing.T) {
	env := setupCLITestEnv(t, ffmpegRule)

	out, _, err := runCLI(t, []string{"matches"}, env.configPath)
	if err != nil {
		t.Fatalf("matches: %v", err)
	}
	requireContains(t, out, "No process overrides matched")

	out, _, err = runCLI(t, []string{"matches", "push", "ffmpeg", "bash"}, env.configPath)
	if err != nil {
		t.Fatalf("matches push: %v", err)
	}
	requireContains(t, out, "Pushed 2 process name(s)")

	out, _, err = runCLI(t, []string{"matches"}, env.configPath)
	if err != nil {
		t.Fatalf("matches after push: %v", err)
	}
	requireContains(t, out, "Encoding")
	requireContains(t, out, "ffmpeg")
	requireContains(t, out, "Performance")

	waitFor(t, 3*time.Second, func() bool {
		return env.daemon.DaemonState().ActiveProfile == power.ProfilePerformance
	})
}

func TestMetricsCommand(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, []string{"metrics"}, env.configPath)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	requireContains(t, out, "Power source:     AC")
	requireContains(t, out, "Battery:          80%")
	requireContains(t, out, "Daemon reachable: yes")
}

func TestWatchPrintsStateChange(t *testing.T) {
	env := setupCLITestEnv(t, "")

	done := make(chan struct{})
	var out string
	var watchErr error
	go func() {
		defer close(done)
		out, _, watchErr = runCLI(t, []string{"watch", "--count", "1"}, env.configPath)
	}()

	// The watcher reads the current version before waiting, so keep nudging
	// the state until it reports a change.
	modes := []string{"performance", "balanced"}
	for i := 0; ; i++ {
		select {
		case <-done:
			if watchErr != nil {
				t.Fatalf("watch: %v", watchErr)
			}
			requireContains(t, out, "profile=")
			requireContains(t, out, "source=manual")
			return
		case <-time.After(100 * time.Millisecond):
		}
		if i > 50 {
			t.Fatal("watch did not report a change")
		}
		if _, _, err := runCLI(t, []string{"profile", modes[i%2]}, env.configPath); err != nil {
			t.Fatalf("profile: %v", err)
		}
	}
}

func TestCommandsReportMissingDaemon(t *testing.T) {
	_, configPath := newConfigOnly(t, "")

	_, _, err := runCLI(t, []string{"profile"}, configPath)
	if err == nil {
		t.Fatal("expected an error without a daemon")
	}
	requireContains(t, err.Error(), "start dynpowerd")

	_, _, err = runCLI(t, []string{"override"}, configPath)
	if err == nil {
		t.Fatal("expected an error without a session")
	}
	requireContains(t, err.Error(), "dynpower session")
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Applier backend: powerprofilesctl")
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(target, []byte("[power.load_thresholds]\nlow = \"fast\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := runCLI(t, []string{"config", "validate"}, target)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected load config error, got %v", err)
	}
}

func TestLogsCommandTailsCurrentLog(t *testing.T) {
	cfg, configPath := newConfigOnly(t, "")
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.LogDir, "dynpower-session.log"), "one\ntwo\nthree\n")
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.LogDir, "dynpowerd.log"), "daemon line\n")

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "two\nthree\n" {
		t.Fatalf("unexpected session log output %q", out)
	}

	out, _, err = runCLI(t, []string{"logs", "--daemon"}, configPath)
	if err != nil {
		t.Fatalf("logs --daemon: %v", err)
	}
	requireContains(t, out, "daemon line")
}
