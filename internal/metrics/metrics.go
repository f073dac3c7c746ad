package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"dynpower/internal/arbiter"
	"dynpower/internal/power"
	"dynpower/internal/sensors"
)

const namespace = "dynpower"

// Roles used as the "role" label.
const (
	RoleDaemon  = "daemon"
	RoleSession = "session"
)

// ─── Cycles ─────────────────────────────────────────────────────────────────

// Cycles counts completed arbitration cycles.
var Cycles = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "cycles_total",
	Help:      "Total arbitration cycles.",
}, []string{"role"})

// CycleDuration tracks wall time spent in one cycle, including apply retries.
var CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "cycle_duration_seconds",
	Help:      "Arbitration cycle duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
}, []string{"role"})

// Decisions counts decisions by the clause that produced them.
var Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "decisions_total",
	Help:      "Total decisions by decision source.",
}, []string{"role", "source"})

// Vetoes counts requests refused by the battery guard.
var Vetoes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "battery_vetoes_total",
	Help:      "Total manual or process requests vetoed on battery.",
}, []string{"role", "source", "mode"})

// ─── Apply ──────────────────────────────────────────────────────────────────

// ApplyAttempts counts applier invocations by outcome.
var ApplyAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "apply_attempts_total",
	Help:      "Total apply attempts by final cycle outcome.",
}, []string{"role", "result"})

// Debounced counts cycles whose decision matched what was already applied.
var Debounced = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "debounced_total",
	Help:      "Total cycles skipped because the decision was already applied.",
}, []string{"role"})

// ActiveProfile is 1 for the applied profile and 0 for the others.
var ActiveProfile = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "active_profile",
	Help:      "Currently applied profile (1=active).",
}, []string{"role", "profile"})

// ApplyFailed is 1 while the last apply failed.
var ApplyFailed = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "apply_failed",
	Help:      "Whether the last apply failed (1=failed).",
}, []string{"role"})

// ThresholdLow and ThresholdHigh track the decided hysteresis bounds.
var ThresholdLow = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "threshold_low",
	Help:      "Decided low load threshold.",
}, []string{"role"})

var ThresholdHigh = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "threshold_high",
	Help:      "Decided high load threshold.",
}, []string{"role"})

// ─── Sensors ────────────────────────────────────────────────────────────────

// Load1m tracks the sampled one minute load average.
var Load1m = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "load_1m",
	Help:      "Sampled one minute load average.",
}, []string{"role"})

// BatteryPercent tracks the sampled battery charge.
var BatteryPercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "battery_percent",
	Help:      "Sampled battery charge percentage.",
}, []string{"role"})

// PowerSource is 1 for the sampled source and 0 for the others.
var PowerSource = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "power_source",
	Help:      "Sampled power source (1=current).",
}, []string{"role", "source"})

// ─── Plumbing ───────────────────────────────────────────────────────────────

// BusErrors counts failed bus calls by method.
var BusErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "bus_errors_total",
	Help:      "Total failed bus calls.",
}, []string{"role", "method"})

// ConfigReloads counts hot reload outcomes.
var ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "config_reloads_total",
	Help:      "Total configuration reloads by result.",
}, []string{"role", "result"})

// EPPWrites counts energy performance preference writes by result.
var EPPWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "epp_writes_total",
	Help:      "Total EPP writes by result.",
}, []string{"result"})

var (
	profiles = []power.Profile{power.ProfilePowersave, power.ProfileBalanced, power.ProfilePerformance}
	sources  = []power.PowerSource{power.SourceAC, power.SourceBattery, power.SourceUnknown}
)

// ObserveCycle records one arbitration cycle.
func ObserveCycle(role string, result arbiter.CycleResult, elapsed time.Duration) {
	Cycles.WithLabelValues(role).Inc()
	CycleDuration.WithLabelValues(role).Observe(elapsed.Seconds())
	Decisions.WithLabelValues(role, string(result.Decision.Source)).Inc()
	for _, veto := range result.Decision.Vetoes {
		Vetoes.WithLabelValues(role, string(veto.Source), string(veto.Mode)).Inc()
	}
	ThresholdLow.WithLabelValues(role).Set(result.Decision.Thresholds.Low)
	ThresholdHigh.WithLabelValues(role).Set(result.Decision.Thresholds.High)

	if result.Debounced {
		Debounced.WithLabelValues(role).Inc()
	}
	if result.Attempts > 0 {
		outcome := "confirmed"
		if result.State == power.ApplyFailed {
			outcome = "failed"
		}
		ApplyAttempts.WithLabelValues(role, outcome).Add(float64(result.Attempts))
	}

	failed := 0.0
	if result.State == power.ApplyFailed {
		failed = 1
	}
	ApplyFailed.WithLabelValues(role).Set(failed)

	if result.Applied || result.Debounced {
		SetActiveProfile(role, result.Decision.Profile)
	}
}

// SetActiveProfile marks profile as the applied one.
func SetActiveProfile(role string, profile power.Profile) {
	for _, p := range profiles {
		value := 0.0
		if p == profile {
			value = 1
		}
		ActiveProfile.WithLabelValues(role, string(p)).Set(value)
	}
}

// ObserveSample records a sensor reading.
func ObserveSample(role string, sample sensors.Sample) {
	Load1m.WithLabelValues(role).Set(sample.Load1m)
	if sample.BatteryPercent != nil {
		BatteryPercent.WithLabelValues(role).Set(*sample.BatteryPercent)
	}
	for _, s := range sources {
		value := 0.0
		if s == sample.Source {
			value = 1
		}
		PowerSource.WithLabelValues(role, string(s)).Set(value)
	}
}

// ObserveBusError records a failed bus call.
func ObserveBusError(role, method string) {
	BusErrors.WithLabelValues(role, method).Inc()
}

// ObserveConfigReload records a hot reload outcome.
func ObserveConfigReload(role string, ok bool) {
	result := "applied"
	if !ok {
		result = "rejected"
	}
	ConfigReloads.WithLabelValues(role, result).Inc()
}

// ObserveEPPWrite records an EPP write outcome.
func ObserveEPPWrite(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EPPWrites.WithLabelValues(result).Inc()
}
