package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"dynpower/internal/config"
)

// Requirement defines an external program or file dynpower relies on. Exactly
// one of Command or Path is set.
type Requirement struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command,omitempty"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements lists what cfg needs at runtime. The backend actually selected
// is required; the others are reported as optional.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	backend := cfg.Applier.Backend
	reqs := []Requirement{
		{
			Name:        "powerprofilesctl",
			Command:     cfg.Applier.PowerProfilesCtl,
			Description: "power-profiles-daemon client",
			Optional:    backend != config.BackendPowerProfilesCtl,
		},
		{
			Name:        "platform_profile",
			Path:        cfg.Applier.PlatformProfilePath,
			Description: "ACPI platform profile",
			Optional:    backend != config.BackendPlatformProfile,
		},
		{
			Name:        "power_supply",
			Path:        filepath.Join(cfg.Paths.SysfsRoot, "class", "power_supply"),
			Description: "AC and battery readings",
			Optional:    true,
		},
	}
	if overdrive := cfg.Features.PanelOverdrive; overdrive.Enabled && len(overdrive.Command) > 0 {
		reqs = append(reqs, Requirement{
			Name:        "panel_overdrive",
			Command:     overdrive.Command[0],
			Description: "panel overdrive toggle",
			Optional:    true,
		})
	}
	names := make([]string, 0, len(cfg.Features.Hooks))
	for name, hook := range cfg.Features.Hooks {
		if hook.Enabled {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		hook := cfg.Features.Hooks[name]
		for _, command := range [][]string{hook.AC, hook.Battery} {
			if len(command) == 0 {
				continue
			}
			reqs = append(reqs, Requirement{
				Name:        "hook_" + name,
				Command:     command[0],
				Description: "power hook " + name,
				Optional:    true,
			})
			break
		}
	}
	return reqs
}

// Check evaluates the provided requirements and reports availability.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{
			Name:        req.Name,
			Command:     strings.TrimSpace(req.Command),
			Path:        strings.TrimSpace(req.Path),
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case status.Command != "":
			if _, err := exec.LookPath(status.Command); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", status.Command)
			} else {
				status.Available = true
			}
		case status.Path != "":
			if _, err := os.Stat(status.Path); err != nil {
				status.Detail = fmt.Sprintf("%s not present", status.Path)
			} else {
				status.Available = true
			}
		default:
			status.Detail = "not configured"
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the names of required entries that are unavailable.
func Missing(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status.Name)
		}
	}
	return missing
}
