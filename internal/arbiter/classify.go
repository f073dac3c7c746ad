package arbiter

import "dynpower/internal/power"

// Classify buckets load against thresholds using half-open intervals:
// load < low is Low, low <= load < high is Medium, load >= high is High.
func Classify(load float64, t power.Thresholds) power.LoadLevel {
	switch {
	case load < t.Low:
		return power.LoadLow
	case load < t.High:
		return power.LoadMedium
	default:
		return power.LoadHigh
	}
}
