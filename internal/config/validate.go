package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"dynpower/internal/logging"
	"dynpower/internal/power"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGeneral(); err != nil {
		return err
	}
	if err := c.validateProfiles(); err != nil {
		return err
	}
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("power.load_thresholds: %w", err)
	}
	if err := c.validateOverrides(); err != nil {
		return err
	}
	if err := c.validateApplier(); err != nil {
		return err
	}
	if err := c.validateEPP(); err != nil {
		return err
	}
	if err := c.validateFeatures(); err != nil {
		return err
	}
	if err := c.validateIPC(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateMetrics()
}

func (c *Config) validateGeneral() error {
	if c.General.PollInterval < power.MinPollSeconds || c.General.PollInterval > power.MaxPollSeconds {
		return fmt.Errorf("general.poll_interval must be between %d and %d seconds", power.MinPollSeconds, power.MaxPollSeconds)
	}
	return nil
}

func (c *Config) validateProfiles() error {
	fields := []struct {
		name  string
		value string
	}{
		{"power.profiles.on_ac.low", c.Power.Profiles.OnAC.Low},
		{"power.profiles.on_ac.medium", c.Power.Profiles.OnAC.Medium},
		{"power.profiles.on_ac.high", c.Power.Profiles.OnAC.High},
		{"power.profiles.on_battery.default", c.Power.Profiles.OnBattery.Default},
	}
	for _, field := range fields {
		if _, err := power.ParseProfile(field.value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	return nil
}

func (c *Config) validateOverrides() error {
	for i, entry := range c.ProcessOverrides {
		label := fmt.Sprintf("process_overrides[%d]", i)
		if entry.ProcessName == "" {
			return fmt.Errorf("%s.process_name must be set", label)
		}
		if strings.TrimSpace(entry.Mode) == "" && strings.TrimSpace(entry.ActiveProfile) == "" {
			return fmt.Errorf("%s: one of mode or active_profile must be set", label)
		}
		mode, err := entry.ResolvedMode()
		if err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		if mode == power.ModeDynamic {
			return fmt.Errorf("%s: Dynamic is not a valid override mode", label)
		}
	}
	return nil
}

func (c *Config) validateApplier() error {
	switch c.Applier.Backend {
	case BackendPowerProfilesCtl, BackendPlatformProfile, BackendNoop:
	default:
		return fmt.Errorf("applier.backend: unsupported value %q", c.Applier.Backend)
	}
	if c.Applier.Retries < 0 || c.Applier.Retries > 10 {
		return errors.New("applier.retries must be between 0 and 10")
	}
	if c.Applier.RetryDelayMS < 0 {
		return errors.New("applier.retry_delay_ms must be non-negative")
	}
	return nil
}

func (c *Config) validateEPP() error {
	if !c.EPP.Enabled {
		return nil
	}
	for _, profile := range power.Profiles {
		if strings.TrimSpace(c.EPP.Values[string(profile)]) == "" {
			return fmt.Errorf("epp.values.%s must be set when epp.enabled is true", profile)
		}
	}
	for key := range c.EPP.Values {
		if _, err := power.ParseProfile(key); err != nil {
			return fmt.Errorf("epp.values: %w", err)
		}
	}
	return nil
}

func (c *Config) validateFeatures() error {
	if c.Features.PanelOverdrive.Enabled && len(c.Features.PanelOverdrive.Command) == 0 {
		return errors.New("features.panel_overdrive.command must be set when panel overdrive is enabled")
	}
	for name, hook := range c.Features.Hooks {
		if name == "" || strings.ContainsAny(name, " \t.") {
			return fmt.Errorf("features.hooks: invalid hook name %q", name)
		}
		if hook.Enabled && len(hook.AC) == 0 && len(hook.Battery) == 0 {
			return fmt.Errorf("features.hooks.%s: ac or battery must be set when enabled", name)
		}
	}
	return nil
}

func (c *Config) validateIPC() error {
	if c.IPC.CallTimeoutMS < 50 {
		return errors.New("ipc.call_timeout_ms must be at least 50")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	for component, level := range c.Logging.ComponentLevels {
		if !logging.ValidLevel(level) {
			return fmt.Errorf("logging.component_levels.%s: unsupported value %q", component, level)
		}
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be non-negative")
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Listen == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
		return fmt.Errorf("metrics.listen: %w", err)
	}
	return nil
}
