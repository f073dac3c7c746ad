package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dynpower/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config for role seeded with unique temp directories
// per test. Sysfs and proc roots point at empty fake trees and the applier
// backend is noop.
func NewConfig(t testing.TB, role config.Role, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.General.PollInterval = 1
	cfgVal.Applier.Backend = config.BackendNoop
	cfgVal.Applier.RetryDelayMS = 0
	cfgVal.Paths.RunDir = filepath.Join(base, "run")
	cfgVal.Paths.DaemonSocket = filepath.Join(base, "run", "dynpowerd.sock")
	cfgVal.Paths.SessionSocket = filepath.Join(base, "run", "session.sock")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SysfsRoot = filepath.Join(base, "sys")
	cfgVal.Paths.ProcRoot = filepath.Join(base, "proc")
	for _, dir := range []string{cfgVal.Paths.RunDir, cfgVal.Paths.SysfsRoot, cfgVal.Paths.ProcRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     cfgVal.WithRole(role),
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithThresholds overrides the configured load thresholds.
func WithThresholds(low, high float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Power.LoadThresholds = config.LoadThresholds{Low: low, High: high}
	}
}

// WithRule appends a process override rule.
func WithRule(processName string, priority int, mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ProcessOverrides = append(b.cfg.ProcessOverrides, config.ProcessOverride{
			Name:        processName,
			ProcessName: processName,
			Priority:    priority,
			Mode:        mode,
		})
	}
}

// WithEPP enables EPP writes with the default value table.
func WithEPP() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.EPP.Enabled = true
	}
}

// WithPanelOverdrive enables panel overdrive with command.
func WithPanelOverdrive(command ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Features.PanelOverdrive.Enabled = true
		if len(command) > 0 {
			b.cfg.Features.PanelOverdrive.Command = command
		}
	}
}

// WithPowerHook enables a named power-source hook.
func WithPowerHook(name string, ac, battery []string) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Features.Hooks == nil {
			b.cfg.Features.Hooks = make(map[string]config.PowerHook)
		}
		b.cfg.Features.Hooks[name] = config.PowerHook{Enabled: true, AC: ac, Battery: battery}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, powerprofilesctl is stubbed.
// Each stub appends its arguments to <name>.log next to it.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"powerprofilesctl"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			target := filepath.Join(binDir, name)
			script := []byte("#!/bin/sh\necho \"$@\" >> \"" + target + ".log\"\nexit 0\n")
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
