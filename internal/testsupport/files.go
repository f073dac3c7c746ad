package testsupport

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// PowerSupply writes a fake /sys/class/power_supply/<name> entry. Each
// attribute is written with a trailing newline, as sysfs does.
func PowerSupply(t testing.TB, sysfsRoot, name string, attrs map[string]string) {
	t.Helper()

	dir := filepath.Join(sysfsRoot, "class", "power_supply", name)
	for attr, value := range attrs {
		WriteFile(t, filepath.Join(dir, attr), value+"\n")
	}
}

// OnAC fakes a laptop on mains with a charging battery.
func OnAC(t testing.TB, sysfsRoot string) {
	t.Helper()
	PowerSupply(t, sysfsRoot, "AC", map[string]string{"type": "Mains", "online": "1"})
	PowerSupply(t, sysfsRoot, "BAT0", map[string]string{"type": "Battery", "status": "Charging", "capacity": "80"})
}

// OnBattery fakes a laptop discharging.
func OnBattery(t testing.TB, sysfsRoot string) {
	t.Helper()
	PowerSupply(t, sysfsRoot, "AC", map[string]string{"type": "Mains", "online": "0"})
	PowerSupply(t, sysfsRoot, "BAT0", map[string]string{"type": "Battery", "status": "Discharging", "capacity": "55"})
}

// LoadAvg writes a fake /proc/loadavg with load as the one minute average.
func LoadAvg(t testing.TB, procRoot string, load float64) {
	t.Helper()
	value := strconv.FormatFloat(load, 'f', 2, 64)
	WriteFile(t, filepath.Join(procRoot, "loadavg"), value+" 0.50 0.25 1/100 4242\n")
}

// Process writes a fake /proc/<pid>/comm owned by the current user.
func Process(t testing.TB, procRoot string, pid int, comm string) {
	t.Helper()
	WriteFile(t, filepath.Join(procRoot, strconv.Itoa(pid), "comm"), comm+"\n")
}

// EPPCPUs writes cpufreq EPP attributes for count CPUs.
func EPPCPUs(t testing.TB, sysfsRoot string, count int, available, current string) {
	t.Helper()
	for i := 0; i < count; i++ {
		dir := filepath.Join(sysfsRoot, "devices", "system", "cpu", "cpu"+strconv.Itoa(i), "cpufreq")
		WriteFile(t, filepath.Join(dir, "energy_performance_available_preferences"), available+"\n")
		WriteFile(t, filepath.Join(dir, "energy_performance_preference"), current+"\n")
	}
}
