package config

import (
	"fmt"
	"strings"

	"dynpower/internal/power"
)

func (c *Config) normalize() error {
	c.normalizeGeneral()
	c.normalizePower()
	c.normalizeOverrides()
	c.normalizeApplier()
	c.normalizeEPP()
	c.normalizeFeatures()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIPC()
	c.normalizeLogging()
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
	return nil
}

func (c *Config) normalizeGeneral() {
	if c.General.PollInterval == 0 {
		c.General.PollInterval = defaultPollInterval
	}
}

func (c *Config) normalizePower() {
	profiles := &c.Power.Profiles
	for _, field := range []*string{&profiles.OnAC.Low, &profiles.OnAC.Medium, &profiles.OnAC.High, &profiles.OnBattery.Default} {
		*field = canonicalProfile(*field)
	}
	thresholds := power.NewThresholds(c.Power.LoadThresholds.Low, c.Power.LoadThresholds.High)
	c.Power.LoadThresholds = LoadThresholds{Low: thresholds.Low, High: thresholds.High}
}

func (c *Config) normalizeOverrides() {
	for i := range c.ProcessOverrides {
		entry := &c.ProcessOverrides[i]
		entry.Name = strings.TrimSpace(entry.Name)
		entry.ProcessName = strings.TrimSpace(entry.ProcessName)
		entry.ActiveProfile = canonicalProfile(entry.ActiveProfile)
		entry.Mode = strings.TrimSpace(entry.Mode)
		if entry.Name == "" {
			entry.Name = entry.ProcessName
		}
	}
}

func (c *Config) normalizeApplier() {
	c.Applier.Backend = strings.ToLower(strings.TrimSpace(c.Applier.Backend))
	if c.Applier.Backend == "" {
		c.Applier.Backend = defaultApplierBackend
	}
	if c.Applier.TimeoutSeconds <= 0 {
		c.Applier.TimeoutSeconds = defaultApplyTimeout
	}
	if strings.TrimSpace(c.Applier.PowerProfilesCtl) == "" {
		c.Applier.PowerProfilesCtl = "powerprofilesctl"
	}
	if strings.TrimSpace(c.Applier.PlatformProfilePath) == "" {
		c.Applier.PlatformProfilePath = defaultPlatformProfile
	}
}

func (c *Config) normalizeEPP() {
	if len(c.EPP.Values) == 0 {
		return
	}
	values := make(map[string]string, len(c.EPP.Values))
	for key, value := range c.EPP.Values {
		values[canonicalProfile(key)] = strings.TrimSpace(value)
	}
	c.EPP.Values = values
}

func (c *Config) normalizeFeatures() {
	if legacy := c.Features.AutoPanelOverdrive; legacy != nil {
		c.Features.PanelOverdrive.Enabled = *legacy
		c.Features.AutoPanelOverdrive = nil
	}
	c.Features.PanelOverdrive.Command = trimCommand(c.Features.PanelOverdrive.Command)
	if len(c.Features.Hooks) == 0 {
		c.Features.Hooks = nil
		return
	}
	hooks := make(map[string]PowerHook, len(c.Features.Hooks))
	for name, hook := range c.Features.Hooks {
		hook.AC = trimCommand(hook.AC)
		hook.Battery = trimCommand(hook.Battery)
		hooks[strings.ToLower(strings.TrimSpace(name))] = hook
	}
	c.Features.Hooks = hooks
}

func trimCommand(parts []string) []string {
	command := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			command = append(command, trimmed)
		}
	}
	return command
}

func (c *Config) normalizePaths() error {
	daemon := c.Role() == RoleDaemon
	if strings.TrimSpace(c.Paths.DaemonSocket) == "" {
		c.Paths.DaemonSocket = defaultDaemonSocket
	}
	if strings.TrimSpace(c.Paths.SessionSocket) == "" {
		c.Paths.SessionSocket = DefaultSessionSocket()
	}
	if strings.TrimSpace(c.Paths.RunDir) == "" {
		if daemon {
			c.Paths.RunDir = defaultDaemonRunDir
		} else {
			c.Paths.RunDir = runtimeDir()
		}
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		if daemon {
			c.Paths.StateDir = defaultDaemonStateDir
		} else {
			c.Paths.StateDir = defaultSessionStateDir
		}
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		if daemon {
			c.Paths.LogDir = defaultDaemonLogDir
		} else {
			c.Paths.LogDir = defaultSessionLogDir
		}
	}
	if strings.TrimSpace(c.Paths.SysfsRoot) == "" {
		c.Paths.SysfsRoot = "/sys"
	}
	if strings.TrimSpace(c.Paths.ProcRoot) == "" {
		c.Paths.ProcRoot = "/proc"
	}

	fields := []struct {
		name  string
		value *string
	}{
		{"paths.daemon_socket", &c.Paths.DaemonSocket},
		{"paths.session_socket", &c.Paths.SessionSocket},
		{"paths.run_dir", &c.Paths.RunDir},
		{"paths.state_dir", &c.Paths.StateDir},
		{"paths.log_dir", &c.Paths.LogDir},
		{"paths.sysfs_root", &c.Paths.SysfsRoot},
		{"paths.proc_root", &c.Paths.ProcRoot},
		{"applier.platform_profile_path", &c.Applier.PlatformProfilePath},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeIPC() {
	if c.IPC.CallTimeoutMS == 0 {
		c.IPC.CallTimeoutMS = defaultCallTimeoutMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// canonicalProfile rewrites recognized profile aliases to their canonical
// name and leaves anything else untouched for validation to reject.
func canonicalProfile(value string) string {
	trimmed := strings.TrimSpace(value)
	if profile, err := power.ParseProfile(trimmed); err == nil {
		return string(profile)
	}
	return trimmed
}
