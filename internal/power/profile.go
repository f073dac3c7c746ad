package power

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownProfile reports a profile string outside the supported set.
var ErrUnknownProfile = errors.New("unknown power profile")

// ErrUnknownMode reports an override mode string outside the supported set.
var ErrUnknownMode = errors.New("unknown override mode")

// Profile is a concrete CPU power profile understood by the applier.
type Profile string

const (
	ProfilePowersave   Profile = "powersave"
	ProfileBalanced    Profile = "balanced"
	ProfilePerformance Profile = "performance"
)

// Profiles lists every supported profile in ascending power order.
var Profiles = []Profile{ProfilePowersave, ProfileBalanced, ProfilePerformance}

// ParseProfile normalizes profile spellings used by power-profiles-daemon,
// older configs, and the CLI.
func ParseProfile(value string) (Profile, error) {
	switch normalizeToken(value) {
	case "powersave", "powersaver", "lowpower":
		return ProfilePowersave, nil
	case "balanced", "balance":
		return ProfileBalanced, nil
	case "performance", "perf":
		return ProfilePerformance, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProfile, value)
}

// PPDName returns the power-profiles-daemon spelling of the profile.
func (p Profile) PPDName() string {
	if p == ProfilePowersave {
		return "power-saver"
	}
	return string(p)
}

// Valid reports whether p is one of the supported profiles.
func (p Profile) Valid() bool {
	switch p {
	case ProfilePowersave, ProfileBalanced, ProfilePerformance:
		return true
	}
	return false
}

// Mode is the user-facing override selection.
type Mode string

const (
	ModeDynamic          Mode = "Dynamic"
	ModeInhibitPowersave Mode = "InhibitPowersave"
	ModePerformance      Mode = "Performance"
	ModeBalanced         Mode = "Balanced"
	ModePowersave        Mode = "Powersave"
)

// Modes lists the modes accepted by the bus in display order.
var Modes = []Mode{ModeDynamic, ModeInhibitPowersave, ModePerformance, ModeBalanced, ModePowersave}

// ParseMode accepts mode names case-insensitively, ignoring separators, and
// also accepts any profile alias as the matching concrete mode.
func ParseMode(value string) (Mode, error) {
	switch normalizeToken(value) {
	case "":
		return "", fmt.Errorf("%w: empty", ErrUnknownMode)
	case "dynamic", "auto":
		return ModeDynamic, nil
	case "inhibitpowersave", "inhibit":
		return ModeInhibitPowersave, nil
	}
	if profile, err := ParseProfile(value); err == nil {
		return ModeForProfile(profile), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, value)
}

// ModeForProfile returns the concrete mode that pins profile.
func ModeForProfile(profile Profile) Mode {
	switch profile {
	case ProfilePerformance:
		return ModePerformance
	case ProfileBalanced:
		return ModeBalanced
	default:
		return ModePowersave
	}
}

// Profile returns the profile pinned by a concrete mode. Dynamic and
// InhibitPowersave do not pin a profile.
func (m Mode) Profile() (Profile, bool) {
	switch m {
	case ModePerformance:
		return ProfilePerformance, true
	case ModeBalanced:
		return ProfileBalanced, true
	case ModePowersave:
		return ProfilePowersave, true
	}
	return "", false
}

// Vetoable reports whether a non-boss request for this mode is refused on
// battery power.
func (m Mode) Vetoable() bool {
	return m == ModePerformance || m == ModeBalanced
}

func normalizeToken(value string) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(lowered)
}
