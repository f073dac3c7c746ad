package power

import "strings"

// PowerSource identifies where the machine currently draws power from.
type PowerSource string

const (
	SourceAC      PowerSource = "AC"
	SourceBattery PowerSource = "Battery"
	SourceUnknown PowerSource = "Unknown"
)

// ParsePowerSource maps wire strings back to a PowerSource. Unrecognized
// values decode as SourceUnknown.
func ParsePowerSource(value string) PowerSource {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "ac", "mains", "online":
		return SourceAC
	case "battery", "bat", "discharging":
		return SourceBattery
	default:
		return SourceUnknown
	}
}

// LoadLevel is the coarse classification of the 1-minute load average.
type LoadLevel string

const (
	LoadLow    LoadLevel = "low"
	LoadMedium LoadLevel = "medium"
	LoadHigh   LoadLevel = "high"
)
