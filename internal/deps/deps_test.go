package deps

import (
	"os"
	"path/filepath"
	"testing"

	"dynpower/internal/config"
)

func TestCheck(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "File", Path: present},
		{Name: "Absent", Path: filepath.Join(binDir, "absent")},
		{Name: "Empty"},
	}

	results := Check(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary with detail, got %#v", results[1])
	}
	if !results[2].Available {
		t.Fatalf("expected file requirement to be available, got %#v", results[2])
	}
	if results[3].Available {
		t.Fatalf("expected absent file to be unavailable")
	}
	if results[4].Available || results[4].Detail != "not configured" {
		t.Fatalf("unexpected status for empty requirement: %#v", results[4])
	}
}

func TestRequirementsFollowBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Applier.Backend = config.BackendPlatformProfile
	cfg.Applier.PowerProfilesCtl = "clearly-not-present-binary"
	cfg.Applier.PlatformProfilePath = filepath.Join(t.TempDir(), "platform_profile")

	statuses := Check(Requirements(&cfg))
	missing := Missing(statuses)
	if len(missing) != 1 || missing[0] != "platform_profile" {
		t.Fatalf("expected only platform_profile to be reported missing, got %v", missing)
	}
	for _, status := range statuses {
		if status.Name == "panel_overdrive" {
			t.Fatalf("panel overdrive listed while disabled")
		}
	}

	cfg.Features.PanelOverdrive.Enabled = true
	cfg.Features.PanelOverdrive.Command = []string{"asusctl", "armoury", "panel_overdrive"}
	reqs := Requirements(&cfg)
	last := reqs[len(reqs)-1]
	if last.Name != "panel_overdrive" || last.Command != "asusctl" || !last.Optional {
		t.Fatalf("unexpected panel overdrive requirement %#v", last)
	}
}

func TestRequirementsNilConfig(t *testing.T) {
	if reqs := Requirements(nil); reqs != nil {
		t.Fatalf("expected no requirements, got %v", reqs)
	}
}

func TestRequirementsListEnabledHooks(t *testing.T) {
	cfg := config.Default()
	cfg.Features.Hooks = map[string]config.PowerHook{
		"refresh": {Enabled: true, Battery: []string{"kscreen-doctor", "output.1.mode.1"}},
		"idle":    {Enabled: false, AC: []string{"idlectl"}},
	}
	var hooks []Requirement
	for _, req := range Requirements(&cfg) {
		if req.Name == "hook_refresh" || req.Name == "hook_idle" {
			hooks = append(hooks, req)
		}
	}
	if len(hooks) != 1 || hooks[0].Name != "hook_refresh" || hooks[0].Command != "kscreen-doctor" || !hooks[0].Optional {
		t.Fatalf("expected only the enabled hook listed, got %#v", hooks)
	}
}
