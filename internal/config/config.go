package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"dynpower/internal/power"
)

//go:embed sample_config.toml
var sampleConfig string

// Role selects role-specific defaults and lookup paths.
type Role string

const (
	RoleDaemon  Role = "daemon"
	RoleSession Role = "session"
)

const (
	// SystemConfigPath is the daemon configuration file.
	SystemConfigPath = "/etc/dynpower/config.toml"
	// UserConfigPath is the per-user configuration file.
	UserConfigPath = "~/.config/dynpower/config.toml"
	// LegacyConfigPath is the YAML file used by earlier dynamic-power releases.
	LegacyConfigPath = "/etc/dynamic-power.yaml"
)

// General contains loop timing.
type General struct {
	PollInterval int `toml:"poll_interval" yaml:"poll_interval"`
}

// ACProfiles maps load levels to profiles while on mains power.
type ACProfiles struct {
	Low    string `toml:"low" yaml:"low"`
	Medium string `toml:"medium" yaml:"medium"`
	High   string `toml:"high" yaml:"high"`
}

// BatteryProfiles holds the profile used on battery regardless of load.
type BatteryProfiles struct {
	Default string `toml:"default" yaml:"default"`
}

// Profiles is the per-source profile table.
type Profiles struct {
	OnAC      ACProfiles      `toml:"on_ac" yaml:"on_ac"`
	OnBattery BatteryProfiles `toml:"on_battery" yaml:"on_battery"`
}

// LoadThresholds are the configured hysteresis bounds.
type LoadThresholds struct {
	Low  float64 `toml:"low" yaml:"low"`
	High float64 `toml:"high" yaml:"high"`
}

// Power groups profile selection settings.
type Power struct {
	Profiles       Profiles       `toml:"profiles" yaml:"profiles"`
	LoadThresholds LoadThresholds `toml:"load_thresholds" yaml:"load_thresholds"`
}

// ProcessOverride is one configured process rule. Either ActiveProfile or
// Mode selects what the rule forces; Mode wins when both are set.
type ProcessOverride struct {
	Name          string `toml:"name" yaml:"name"`
	ProcessName   string `toml:"process_name" yaml:"process_name"`
	Priority      int    `toml:"priority" yaml:"priority"`
	ActiveProfile string `toml:"active_profile" yaml:"active_profile"`
	Mode          string `toml:"mode" yaml:"mode"`
}

// Applier configures how profiles are written to the system.
type Applier struct {
	Backend             string `toml:"backend" yaml:"backend"`
	Retries             int    `toml:"retries" yaml:"retries"`
	RetryDelayMS        int    `toml:"retry_delay_ms" yaml:"retry_delay_ms"`
	TimeoutSeconds      int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
	PowerProfilesCtl    string `toml:"powerprofilesctl" yaml:"powerprofilesctl"`
	PlatformProfilePath string `toml:"platform_profile_path" yaml:"platform_profile_path"`
}

// EPP configures the energy performance preference written after each
// confirmed profile change.
type EPP struct {
	Enabled bool              `toml:"enabled" yaml:"enabled"`
	Values  map[string]string `toml:"values" yaml:"values"`
}

// PanelOverdrive toggles the laptop panel overdrive on power source changes.
type PanelOverdrive struct {
	Enabled bool     `toml:"enabled" yaml:"enabled"`
	Command []string `toml:"command" yaml:"command"`
}

// PowerHook runs one command when the session switches to AC and another
// when it switches to battery. An empty command leaves that side unchanged.
type PowerHook struct {
	Enabled bool     `toml:"enabled" yaml:"enabled"`
	AC      []string `toml:"ac" yaml:"ac"`
	Battery []string `toml:"battery" yaml:"battery"`
}

// Command returns the argv for source, or nil when nothing should run.
func (h PowerHook) Command(source power.PowerSource) []string {
	if !h.Enabled {
		return nil
	}
	switch source {
	case power.SourceAC:
		return h.AC
	case power.SourceBattery:
		return h.Battery
	default:
		return nil
	}
}

// Features groups optional session-side integrations.
type Features struct {
	PanelOverdrive PanelOverdrive `toml:"panel_overdrive" yaml:"panel_overdrive"`
	// Hooks are user commands keyed by name, such as a refresh-rate switch
	// or a panel autohide toggle.
	Hooks map[string]PowerHook `toml:"hooks" yaml:"hooks"`
	// AutoPanelOverdrive is the legacy YAML spelling of panel_overdrive.enabled.
	AutoPanelOverdrive *bool `toml:"-" yaml:"auto_panel_overdrive"`
}

// Session configures the per-session process.
type Session struct {
	ScanProcesses bool `toml:"scan_processes" yaml:"scan_processes"`
}

// Paths contains socket, state, and sysfs locations.
type Paths struct {
	DaemonSocket  string `toml:"daemon_socket" yaml:"daemon_socket"`
	SessionSocket string `toml:"session_socket" yaml:"session_socket"`
	RunDir        string `toml:"run_dir" yaml:"run_dir"`
	StateDir      string `toml:"state_dir" yaml:"state_dir"`
	LogDir        string `toml:"log_dir" yaml:"log_dir"`
	SysfsRoot     string `toml:"sysfs_root" yaml:"sysfs_root"`
	ProcRoot      string `toml:"proc_root" yaml:"proc_root"`
}

// IPC configures bus timeouts.
type IPC struct {
	CallTimeoutMS int `toml:"call_timeout_ms" yaml:"call_timeout_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format          string            `toml:"format" yaml:"format"`
	Level           string            `toml:"level" yaml:"level"`
	RetentionDays   int               `toml:"retention_days" yaml:"retention_days"`
	ComponentLevels map[string]string `toml:"component_levels" yaml:"component_levels"`
}

// Metrics configures the optional Prometheus endpoint.
type Metrics struct {
	Listen string `toml:"listen" yaml:"listen"`
}

// Config encapsulates all configuration values for dynpower.
//
// Configuration sections by subsystem:
//   - General: cycle poll interval
//   - Power: profile table and load thresholds
//   - ProcessOverrides: rules forcing a mode while a process runs
//   - Applier: profile backend, retry budget, timeouts
//   - EPP: energy performance preference per profile
//   - Features: session integrations such as panel overdrive
//   - Session: process scanning
//   - Paths: sockets, run/state/log directories, sysfs and proc roots
//   - IPC: bus call timeouts
//   - Logging: log format, level, and retention
//   - Metrics: Prometheus listener
type Config struct {
	General          General           `toml:"general" yaml:"general"`
	Power            Power             `toml:"power" yaml:"power"`
	ProcessOverrides []ProcessOverride `toml:"process_overrides" yaml:"process_overrides"`
	Applier          Applier           `toml:"applier" yaml:"applier"`
	EPP              EPP               `toml:"epp" yaml:"epp"`
	Features         Features          `toml:"features" yaml:"features"`
	Session          Session           `toml:"session" yaml:"session"`
	Paths            Paths             `toml:"paths" yaml:"paths"`
	IPC              IPC               `toml:"ipc" yaml:"ipc"`
	Logging          Logging           `toml:"logging" yaml:"logging"`
	Metrics          Metrics           `toml:"metrics" yaml:"metrics"`

	role Role
}

// SearchPaths returns the lookup order used when no explicit path is given.
func SearchPaths(role Role) []string {
	if role == RoleDaemon {
		return []string{SystemConfigPath, LegacyConfigPath}
	}
	return []string{UserConfigPath, SystemConfigPath, LegacyConfigPath}
}

// DefaultConfigPath returns the preferred configuration path for role.
func DefaultConfigPath(role Role) (string, error) {
	return expandPath(SearchPaths(role)[0])
}

// Load locates, parses, and validates a configuration file for the session
// role.
func Load(path string) (*Config, string, bool, error) {
	return LoadFor(RoleSession, path)
}

// LoadFor locates, parses, and validates a configuration file. The returned
// config has defaults applied and all path fields expanded.
func LoadFor(role Role, path string) (*Config, string, bool, error) {
	cfg := Default()
	cfg.role = role

	resolvedPath, exists, err := resolveConfigPath(role, path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	return nil
}

func resolveConfigPath(role Role, path string) (string, bool, error) {
	if strings.TrimSpace(path) != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	candidates := SearchPaths(role)
	for _, candidate := range candidates {
		expanded, err := expandPath(candidate)
		if err != nil {
			continue
		}
		if info, err := os.Stat(expanded); err == nil && !info.IsDir() {
			return expanded, true, nil
		}
	}
	first, err := expandPath(candidates[0])
	if err != nil {
		return "", false, err
	}
	return first, false, nil
}

// Role reports which process the config was loaded for.
func (c *Config) Role() Role {
	if c.role == "" {
		return RoleSession
	}
	return c.role
}

// WithRole returns a copy of c loaded for role. Path defaults already filled
// in are kept.
func (c *Config) WithRole(role Role) *Config {
	clone := *c
	clone.role = role
	return &clone
}

// EnsureDirectories creates the run, state, and log directories.
func (c *Config) EnsureDirectories() error {
	socket := c.Paths.SessionSocket
	if c.Role() == RoleDaemon {
		socket = c.Paths.DaemonSocket
	}
	for _, dir := range []string{c.Paths.RunDir, c.Paths.StateDir, c.Paths.LogDir, filepath.Dir(socket)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PollInterval returns the configured cycle interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.General.PollInterval) * time.Second
}

// Thresholds returns the clamped configured thresholds.
func (c *Config) Thresholds() power.Thresholds {
	return power.NewThresholds(c.Power.LoadThresholds.Low, c.Power.LoadThresholds.High)
}

// ProfileTable returns the parsed per-source profile table.
func (c *Config) ProfileTable() power.ProfileTable {
	parse := func(value string, fallback power.Profile) power.Profile {
		if p, err := power.ParseProfile(value); err == nil {
			return p
		}
		return fallback
	}
	return power.ProfileTable{
		OnAC: map[power.LoadLevel]power.Profile{
			power.LoadLow:    parse(c.Power.Profiles.OnAC.Low, power.ProfilePowersave),
			power.LoadMedium: parse(c.Power.Profiles.OnAC.Medium, power.ProfileBalanced),
			power.LoadHigh:   parse(c.Power.Profiles.OnAC.High, power.ProfilePerformance),
		},
		OnBattery: parse(c.Power.Profiles.OnBattery.Default, power.ProfilePowersave),
	}
}

// Rules returns the process override rules in configured order.
func (c *Config) Rules() []power.ProcessOverrideRule {
	rules := make([]power.ProcessOverrideRule, 0, len(c.ProcessOverrides))
	for _, entry := range c.ProcessOverrides {
		mode, err := entry.ResolvedMode()
		if err != nil {
			continue
		}
		rules = append(rules, power.ProcessOverrideRule{
			Name:        entry.Name,
			ProcessName: entry.ProcessName,
			Priority:    entry.Priority,
			Mode:        mode,
		})
	}
	return rules
}

// ResolvedMode returns the mode a rule forces.
func (p ProcessOverride) ResolvedMode() (power.Mode, error) {
	if strings.TrimSpace(p.Mode) != "" {
		return power.ParseMode(p.Mode)
	}
	return power.ParseMode(p.ActiveProfile)
}

// EPPValue returns the energy performance preference for profile when EPP is
// enabled.
func (c *Config) EPPValue(profile power.Profile) (string, bool) {
	if !c.EPP.Enabled {
		return "", false
	}
	value := strings.TrimSpace(c.EPP.Values[string(profile)])
	return value, value != ""
}

// CallTimeout bounds each bus call.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.IPC.CallTimeoutMS) * time.Millisecond
}

// RetryDelay is the fixed delay between apply attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Applier.RetryDelayMS) * time.Millisecond
}

// ApplyTimeout bounds each external apply command.
func (c *Config) ApplyTimeout() time.Duration {
	return time.Duration(c.Applier.TimeoutSeconds) * time.Second
}

// LockPath is the single-instance lock file for the config's role.
func (c *Config) LockPath() string {
	if c.Role() == RoleDaemon {
		return filepath.Join(c.Paths.RunDir, "dynpowerd.lock")
	}
	return filepath.Join(c.Paths.RunDir, "session.lock")
}

// PIDPath is the pid file for the config's role.
func (c *Config) PIDPath() string {
	if c.Role() == RoleDaemon {
		return filepath.Join(c.Paths.RunDir, "dynpowerd.pid")
	}
	return filepath.Join(c.Paths.RunDir, "session.pid")
}

// StateDBPath is the sqlite file holding the last-known decision.
func (c *Config) StateDBPath() string {
	return filepath.Join(c.Paths.StateDir, "state.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
