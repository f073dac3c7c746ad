package power

import "time"

// ManualOverride is the user's explicit mode selection. Boss overrides bypass
// the battery veto.
type ManualOverride struct {
	Mode Mode `json:"mode"`
	Boss bool `json:"boss"`
}

// Active reports whether the override replaces dynamic selection.
func (o ManualOverride) Active() bool {
	return o.Mode != "" && o.Mode != ModeDynamic
}

// ProcessOverrideRule forces a mode while a named process runs.
type ProcessOverrideRule struct {
	Name        string `json:"name,omitempty"`
	ProcessName string `json:"process_name"`
	Priority    int    `json:"priority"`
	Mode        Mode   `json:"mode"`
}

// DecisionSource names the arbitration clause that selected the profile.
type DecisionSource string

const (
	SourceManual  DecisionSource = "manual"
	SourceProcess DecisionSource = "process"
	SourceDynamic DecisionSource = "dynamic"
)

// Veto records a request refused because of the battery guard.
type Veto struct {
	Source DecisionSource `json:"source"`
	Mode   Mode           `json:"mode"`
}

// Decision is the outcome of one arbitration pass.
type Decision struct {
	Profile     Profile        `json:"profile"`
	Thresholds  Thresholds     `json:"thresholds"`
	Source      DecisionSource `json:"source"`
	Inhibited   bool           `json:"inhibited"`
	LoadLevel   LoadLevel      `json:"load_level,omitempty"`
	PowerSource PowerSource    `json:"power_source"`
	Reason      string         `json:"reason"`
	Vetoes      []Veto         `json:"vetoes,omitempty"`
	CycleAt     time.Time      `json:"cycle_at"`
}

// Target is the part of a decision the applier acts on and the debounce
// compares.
type Target struct {
	Profile    Profile
	Thresholds Thresholds
}

// Target extracts the comparable apply target.
func (d Decision) Target() Target {
	return Target{Profile: d.Profile, Thresholds: d.Thresholds}
}

// Equal compares two targets.
func (t Target) Equal(other Target) bool {
	return t.Profile == other.Profile && t.Thresholds.Equal(other.Thresholds)
}

// ApplyState tracks the profile applier state machine.
type ApplyState string

const (
	ApplyIdle      ApplyState = "idle"
	ApplyApplying  ApplyState = "applying"
	ApplyConfirmed ApplyState = "confirmed"
	ApplyFailed    ApplyState = "failed"
)

// DaemonState is the authoritative record of what is applied.
type DaemonState struct {
	ActiveProfile  Profile        `json:"active_profile"`
	ThresholdLow   float64        `json:"threshold_low"`
	ThresholdHigh  float64        `json:"threshold_high"`
	LastUpdated    time.Time      `json:"last_updated"`
	LastCycle      time.Time      `json:"last_cycle"`
	ApplyState     ApplyState     `json:"apply_state"`
	ApplyAttempts  int            `json:"apply_attempts"`
	PowerSource    PowerSource    `json:"power_source"`
	DecisionSource DecisionSource `json:"decision_source"`
	Version        uint64         `json:"version"`
}

// Thresholds returns the applied thresholds as a value.
func (s DaemonState) Thresholds() Thresholds {
	return Thresholds{Low: s.ThresholdLow, High: s.ThresholdHigh}
}

// Target returns the applied profile and thresholds.
func (s DaemonState) Target() Target {
	return Target{Profile: s.ActiveProfile, Thresholds: s.Thresholds()}
}

// ProfileTable maps the sampled power source and load level to a profile.
type ProfileTable struct {
	OnAC      map[LoadLevel]Profile
	OnBattery Profile
}

// Lookup returns the dynamic profile for source and level. Unknown sources
// use the AC table.
func (t ProfileTable) Lookup(source PowerSource, level LoadLevel) Profile {
	if source == SourceBattery {
		if t.OnBattery != "" {
			return t.OnBattery
		}
		return ProfilePowersave
	}
	if profile, ok := t.OnAC[level]; ok && profile != "" {
		return profile
	}
	return ProfileBalanced
}

// DefaultProfileTable is the table used when configuration omits one.
func DefaultProfileTable() ProfileTable {
	return ProfileTable{
		OnAC: map[LoadLevel]Profile{
			LoadLow:    ProfilePowersave,
			LoadMedium: ProfileBalanced,
			LoadHigh:   ProfilePerformance,
		},
		OnBattery: ProfilePowersave,
	}
}
