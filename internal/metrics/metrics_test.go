package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dynpower/internal/arbiter"
	"dynpower/internal/power"
	"dynpower/internal/sensors"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

// value returns the sample of family name whose labels include want.
func value(t *testing.T, name string, want map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			matched := 0
			for _, label := range m.GetLabel() {
				if v, ok := want[label.GetName()]; ok && v == label.GetValue() {
					matched++
				}
			}
			if matched != len(want) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func TestObserveCycleRecordsDecision(t *testing.T) {
	result := arbiter.CycleResult{
		Decision: power.Decision{
			Profile:    power.ProfilePerformance,
			Thresholds: power.NewThresholds(1, 2),
			Source:     power.SourceProcess,
			Vetoes:     []power.Veto{{Source: power.SourceManual, Mode: power.ModeBalanced}},
		},
		State:    power.ApplyConfirmed,
		Applied:  true,
		Attempts: 2,
	}
	before := value(t, "dynpower_apply_attempts_total", map[string]string{"role": "test", "result": "confirmed"})
	ObserveCycle("test", result, 15*time.Millisecond)

	if got := value(t, "dynpower_apply_attempts_total", map[string]string{"role": "test", "result": "confirmed"}) - before; got != 2 {
		t.Fatalf("expected 2 confirmed attempts, got %v", got)
	}
	if got := value(t, "dynpower_active_profile", map[string]string{"role": "test", "profile": "performance"}); got != 1 {
		t.Fatalf("expected performance active, got %v", got)
	}
	if got := value(t, "dynpower_active_profile", map[string]string{"role": "test", "profile": "powersave"}); got != 0 {
		t.Fatalf("expected powersave inactive, got %v", got)
	}
	if got := value(t, "dynpower_threshold_high", map[string]string{"role": "test"}); got != 2 {
		t.Fatalf("expected high threshold 2, got %v", got)
	}
	if got := value(t, "dynpower_battery_vetoes_total", map[string]string{"role": "test", "source": "manual", "mode": "Balanced"}); got < 1 {
		t.Fatalf("expected veto recorded, got %v", got)
	}

	names := gatheredNames(t)
	for _, name := range []string{
		"dynpower_cycles_total",
		"dynpower_cycle_duration_seconds",
		"dynpower_decisions_total",
		"dynpower_apply_attempts_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestObserveCycleFailure(t *testing.T) {
	ObserveCycle("fail", arbiter.CycleResult{
		Decision: power.Decision{Profile: power.ProfileBalanced, Source: power.SourceDynamic},
		State:    power.ApplyFailed,
		Attempts: 3,
		Err:      errors.New("boom"),
	}, time.Millisecond)

	if got := value(t, "dynpower_apply_failed", map[string]string{"role": "fail"}); got != 1 {
		t.Fatalf("expected apply_failed 1, got %v", got)
	}
	if got := value(t, "dynpower_apply_attempts_total", map[string]string{"role": "fail", "result": "failed"}); got != 3 {
		t.Fatalf("expected 3 failed attempts, got %v", got)
	}
}

func TestObserveSample(t *testing.T) {
	percent := 55.0
	ObserveSample("sample", sensors.Sample{Source: power.SourceBattery, BatteryPercent: &percent, Load1m: 1.25})

	if got := value(t, "dynpower_load_1m", map[string]string{"role": "sample"}); got != 1.25 {
		t.Fatalf("expected load 1.25, got %v", got)
	}
	if got := value(t, "dynpower_battery_percent", map[string]string{"role": "sample"}); got != 55 {
		t.Fatalf("expected battery 55, got %v", got)
	}
	if got := value(t, "dynpower_power_source", map[string]string{"role": "sample", "source": "Battery"}); got != 1 {
		t.Fatalf("expected battery source 1, got %v", got)
	}
	if got := value(t, "dynpower_power_source", map[string]string{"role": "sample", "source": "AC"}); got != 0 {
		t.Fatalf("expected AC source 0, got %v", got)
	}
}

func TestHandlerServesHealthAndMetrics(t *testing.T) {
	srv := NewServer("127.0.0.1:0", func() Health {
		return Health{Status: "ok", Role: RoleDaemon, Profile: "balanced"}
	}, nil)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	var health Health
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Role != RoleDaemon || health.Profile != "balanced" {
		t.Fatalf("unexpected health %+v", health)
	}

	Cycles.WithLabelValues("http").Inc()
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dynpower_cycles_total") {
		t.Fatal("expected dynpower_cycles_total in exposition")
	}
}

func TestHealthzDegraded(t *testing.T) {
	srv := NewServer("", func() Health { return Health{Status: "apply_failed"} }, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
