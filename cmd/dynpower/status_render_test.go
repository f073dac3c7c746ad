package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"dynpower/internal/daemonctl"
	"dynpower/internal/deps"
	"dynpower/internal/ipc"
	"dynpower/internal/power"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"performance": "Performance",
		"failed":      "Failed",
		"power_saver": "Power Saver",
		"":            "Unknown",
	}
	for in, want := range cases {
		if got := displayName(in); got != want {
			t.Errorf("displayName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDaemonStatusLinesStopped(t *testing.T) {
	lines := daemonStatusLines(&daemonctl.StatusSnapshot{}, time.Now(), false)
	if len(lines) != 1 {
		t.Fatalf("expected a single line for a stopped daemon without saved state, got %v", lines)
	}
	if !strings.Contains(lines[0], "[ERROR] Not running") {
		t.Fatalf("unexpected line %q", lines[0])
	}
}

func TestDaemonStatusLinesApplyFailed(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	snapshot := &daemonctl.StatusSnapshot{
		DaemonRunning: true,
		DaemonPID:     99,
		State: power.DaemonState{
			ActiveProfile:  power.ProfileBalanced,
			ApplyState:     power.ApplyFailed,
			DecisionSource: power.SourceProcess,
			PowerSource:    power.SourceAC,
			ThresholdLow:   1,
			ThresholdHigh:  2,
			LastUpdated:    now.Add(-90 * time.Second),
		},
	}
	joined := strings.Join(daemonStatusLines(snapshot, now, false), "\n")
	for _, want := range []string{
		"[OK] Running (pid 99)",
		"[ERROR] Failed",
		"[INFO] Process",
		"low 1.00 / high 2.00",
		"1m30s ago",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in\n%s", want, joined)
		}
	}
}

func TestSessionStatusLinesUnreachableDaemon(t *testing.T) {
	battery := 42.0
	lines := sessionStatusLines(&ipc.SessionMetrics{
		ResolvedProfile: power.ProfilePowersave,
		Load1m:          0.75,
		BatteryPercent:  &battery,
		DecisionReason:  "battery",
	}, false)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"[ERROR] Unreachable", "Powersave", "0.75", "42%", "battery"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in\n%s", want, joined)
		}
	}
}

func TestRenderMatchesMarksWinner(t *testing.T) {
	table := renderMatches([]ipc.ProcessMatch{
		{Name: "Encoding", ProcessName: "ffmpeg", Priority: 10, Mode: power.ModePerformance, Active: true},
		{ProcessName: "make", Priority: 1, Mode: power.ModeBalanced},
	})
	lines := strings.Split(table, "\n")
	var encoding, makeLine string
	for _, line := range lines {
		switch {
		case strings.Contains(line, "Encoding"):
			encoding = line
		case strings.Contains(line, "make"):
			makeLine = line
		}
	}
	if !strings.Contains(encoding, "*") {
		t.Fatalf("expected winner marker on %q", encoding)
	}
	if strings.Contains(makeLine, "*") {
		t.Fatalf("unexpected winner marker on %q", makeLine)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestDependencyLinesMarksRequiredMissing(t *testing.T) {
	lines := dependencyLines([]deps.Status{
		{Name: "powerprofilesctl", Command: "powerprofilesctl", Available: true},
		{Name: "platform_profile", Detail: "/sys/firmware/acpi/platform_profile not present"},
		{Name: "panel_overdrive", Detail: "binary \"asusctl\" not found", Optional: true},
	}, false)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{
		"[OK] Ready (command: powerprofilesctl)",
		"[ERROR] /sys/firmware/acpi/platform_profile not present",
		"not found (optional)",
		"[WARN] platform_profile",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in\n%s", want, joined)
		}
	}
}
