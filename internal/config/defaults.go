package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	defaultPollInterval    = 2
	defaultThresholdLow    = 1.0
	defaultThresholdHigh   = 2.0
	defaultApplierBackend  = BackendPowerProfilesCtl
	defaultApplierRetries  = 2
	defaultRetryDelayMS    = 250
	defaultApplyTimeout    = 5
	defaultCallTimeoutMS   = 1000
	defaultRetentionDays   = 30
	defaultDaemonSocket    = "/run/dynpower/dynpowerd.sock"
	defaultDaemonRunDir    = "/run/dynpower"
	defaultDaemonStateDir  = "/var/lib/dynpower"
	defaultDaemonLogDir    = "/var/log/dynpower"
	defaultSessionStateDir = "~/.local/state/dynpower"
	defaultSessionLogDir   = "~/.local/state/dynpower/logs"
	defaultPlatformProfile = "/sys/firmware/acpi/platform_profile"
)

// Applier backends.
const (
	BackendPowerProfilesCtl = "powerprofilesctl"
	BackendPlatformProfile  = "platform_profile"
	BackendNoop             = "noop"
)

// Default returns a Config populated with repository defaults. Role-dependent
// paths are filled in by normalization.
func Default() Config {
	return Config{
		General: General{PollInterval: defaultPollInterval},
		Power: Power{
			Profiles: Profiles{
				OnAC: ACProfiles{
					Low:    "powersave",
					Medium: "balanced",
					High:   "performance",
				},
				OnBattery: BatteryProfiles{Default: "powersave"},
			},
			LoadThresholds: LoadThresholds{Low: defaultThresholdLow, High: defaultThresholdHigh},
		},
		Applier: Applier{
			Backend:             defaultApplierBackend,
			Retries:             defaultApplierRetries,
			RetryDelayMS:        defaultRetryDelayMS,
			TimeoutSeconds:      defaultApplyTimeout,
			PowerProfilesCtl:    "powerprofilesctl",
			PlatformProfilePath: defaultPlatformProfile,
		},
		EPP: EPP{
			Enabled: false,
			Values: map[string]string{
				"powersave":   "power",
				"balanced":    "balance_performance",
				"performance": "performance",
			},
		},
		Features: Features{
			PanelOverdrive: PanelOverdrive{
				Enabled: false,
				Command: []string{"asusctl", "armoury", "panel_overdrive"},
			},
		},
		Session: Session{ScanProcesses: true},
		Paths: Paths{
			DaemonSocket: defaultDaemonSocket,
			SysfsRoot:    "/sys",
			ProcRoot:     "/proc",
		},
		IPC: IPC{CallTimeoutMS: defaultCallTimeoutMS},
		Logging: Logging{
			Format:        "console",
			Level:         "info",
			RetentionDays: defaultRetentionDays,
		},
	}
}

// runtimeDir returns $XDG_RUNTIME_DIR/dynpower, falling back to a per-uid
// directory under the system temp dir.
func runtimeDir() string {
	if base := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); base != "" {
		return filepath.Join(base, "dynpower")
	}
	return filepath.Join(os.TempDir(), "dynpower-"+strconv.Itoa(os.Getuid()))
}

// DefaultSessionSocket is the session bus socket for the current user.
func DefaultSessionSocket() string {
	return filepath.Join(runtimeDir(), "session.sock")
}
