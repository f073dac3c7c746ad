package applier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dynpower/internal/power"
)

// platformNames lists acceptable platform_profile values per profile in
// preference order.
var platformNames = map[power.Profile][]string{
	power.ProfilePowersave:   {"low-power", "quiet", "cool"},
	power.ProfileBalanced:    {"balanced"},
	power.ProfilePerformance: {"performance", "balanced-performance"},
}

// PlatformProfile writes the ACPI platform_profile attribute directly.
type PlatformProfile struct {
	path string
}

// NewPlatformProfile creates a backend for the attribute at path.
func NewPlatformProfile(path string) *PlatformProfile {
	return &PlatformProfile{path: path}
}

// Name identifies the backend.
func (p *PlatformProfile) Name() string { return "platform_profile" }

// Active reads the attribute and maps it to a profile.
func (p *PlatformProfile) Active(ctx context.Context) (power.Profile, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", fmt.Errorf("read platform profile: %w", err)
	}
	value := strings.TrimSpace(string(data))
	for profile, names := range platformNames {
		for _, name := range names {
			if name == value {
				return profile, nil
			}
		}
	}
	return "", fmt.Errorf("%w: platform profile %q", power.ErrUnknownProfile, value)
}

// Apply writes the first supported name for profile.
func (p *PlatformProfile) Apply(ctx context.Context, profile power.Profile) error {
	names, ok := platformNames[profile]
	if !ok {
		return fmt.Errorf("%w: %q", power.ErrUnknownProfile, profile)
	}
	if current, err := p.Active(ctx); err == nil && current == profile {
		return nil
	}
	value := p.choose(names)
	if err := os.WriteFile(p.path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write platform profile %s: %w", value, err)
	}
	return nil
}

// choose picks the first name listed in platform_profile_choices, falling
// back to the primary name when choices cannot be read.
func (p *PlatformProfile) choose(names []string) string {
	data, err := os.ReadFile(filepath.Join(filepath.Dir(p.path), "platform_profile_choices"))
	if err != nil {
		return names[0]
	}
	available := strings.Fields(string(data))
	for _, name := range names {
		for _, choice := range available {
			if choice == name {
				return name
			}
		}
	}
	return names[0]
}
