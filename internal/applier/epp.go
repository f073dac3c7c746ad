package applier

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dynpower/internal/logging"
)

var (
	// ErrEPPUnsupported reports a preference the CPU does not offer.
	ErrEPPUnsupported = errors.New("energy performance preference not supported")
	// ErrEPPUnavailable reports that no cpufreq EPP attributes exist.
	ErrEPPUnavailable = errors.New("energy performance preference unavailable")
)

// EPPWriter writes energy_performance_preference for every CPU.
type EPPWriter struct {
	sysfsRoot string
	logger    *slog.Logger
	last      string
}

// NewEPPWriter creates a writer rooted at sysfsRoot.
func NewEPPWriter(sysfsRoot string, logger *slog.Logger) *EPPWriter {
	if strings.TrimSpace(sysfsRoot) == "" {
		sysfsRoot = "/sys"
	}
	return &EPPWriter{sysfsRoot: sysfsRoot, logger: logging.NewComponentLogger(logger, "epp")}
}

// Write applies value to all CPUs. It returns false when the value matched
// the last successful write and nothing was written.
func (w *EPPWriter) Write(value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, fmt.Errorf("%w: empty value", ErrEPPUnsupported)
	}
	if value == w.last {
		return false, nil
	}
	cpuDir := filepath.Join(w.sysfsRoot, "devices", "system", "cpu")
	if data, err := os.ReadFile(filepath.Join(cpuDir, "cpu0", "cpufreq", "energy_performance_available_preferences")); err == nil {
		if !containsField(string(data), value) {
			return false, fmt.Errorf("%w: %q (available: %s)", ErrEPPUnsupported, value, strings.TrimSpace(string(data)))
		}
	}
	paths, err := filepath.Glob(filepath.Join(cpuDir, "cpu[0-9]*", "cpufreq", "energy_performance_preference"))
	if err != nil {
		return false, fmt.Errorf("list epp attributes: %w", err)
	}
	if len(paths) == 0 {
		return false, ErrEPPUnavailable
	}
	var errs []error
	for _, path := range paths {
		if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", path, err))
		}
	}
	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}
	w.last = value
	w.logger.Debug("energy performance preference written",
		logging.String("epp", value),
		logging.Int("cpus", len(paths)),
	)
	return true, nil
}

func containsField(list, value string) bool {
	for _, field := range strings.Fields(list) {
		if field == value {
			return true
		}
	}
	return false
}
