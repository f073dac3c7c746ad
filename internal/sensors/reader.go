package sensors

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"dynpower/internal/logging"
	"dynpower/internal/power"
)

// Sample is one reading of the machine's power inputs.
type Sample struct {
	Source         power.PowerSource `json:"power_source"`
	BatteryPercent *float64          `json:"battery_percent,omitempty"`
	Load1m         float64           `json:"load_1m"`
	SampledAt      time.Time         `json:"timestamp"`
}

// Option customizes a Reader.
type Option func(*Reader)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Reader) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLoadFallback overrides the load source used when /proc/loadavg cannot
// be read.
func WithLoadFallback(fn func() (float64, error)) Option {
	return func(r *Reader) {
		if fn != nil {
			r.loadFallback = fn
		}
	}
}

// Reader samples power supply state and load. It is owned by a single cycle
// loop and is not safe for concurrent use.
type Reader struct {
	sysfsRoot    string
	procRoot     string
	logger       *slog.Logger
	now          func() time.Time
	loadFallback func() (float64, error)

	reported   map[string]struct{}
	lastSource power.PowerSource
}

// NewReader creates a reader rooted at sysfsRoot and procRoot.
func NewReader(sysfsRoot, procRoot string, logger *slog.Logger, opts ...Option) *Reader {
	if strings.TrimSpace(sysfsRoot) == "" {
		sysfsRoot = "/sys"
	}
	if strings.TrimSpace(procRoot) == "" {
		procRoot = "/proc"
	}
	r := &Reader{
		sysfsRoot:    sysfsRoot,
		procRoot:     procRoot,
		logger:       logging.NewComponentLogger(logger, "sensors"),
		now:          time.Now,
		loadFallback: sysinfoLoad,
		reported:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sample reads the current power source, battery percentage, and load
// average. It never fails; unavailable inputs degrade to Unknown and 0.0.
func (r *Reader) Sample(ctx context.Context) Sample {
	source, battery := r.readPowerSupply()
	sample := Sample{
		Source:         source,
		BatteryPercent: battery,
		Load1m:         r.readLoad(),
		SampledAt:      r.now(),
	}
	if source == power.SourceUnknown && r.lastSource != power.SourceUnknown {
		logging.WarnWithContext(r.logger, "power source could not be determined", "power_source_unknown",
			logging.String("power_supply_dir", r.supplyDir()),
			logging.String(logging.FieldErrorHint, "check that the power_supply class is exposed in sysfs"),
			logging.String(logging.FieldImpact, "profile selection uses the AC table"),
		)
	}
	r.lastSource = source
	return sample
}

func (r *Reader) supplyDir() string {
	return filepath.Join(r.sysfsRoot, "class", "power_supply")
}

type supplyState struct {
	mainsOnline  bool
	mainsOffline bool
	battery      string
	status       string
	capacity     *float64
}

func (r *Reader) readPowerSupply() (power.PowerSource, *float64) {
	dir := r.supplyDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		r.reportMissing(dir, err)
		return power.SourceUnknown, nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var state supplyState
	for _, name := range names {
		supply := filepath.Join(dir, name)
		kind, ok := r.readValue(filepath.Join(supply, "type"))
		if !ok {
			continue
		}
		switch kind {
		case "Mains":
			online, ok := r.readValue(filepath.Join(supply, "online"))
			if !ok {
				continue
			}
			if online == "1" {
				state.mainsOnline = true
			} else {
				state.mainsOffline = true
			}
		case "Battery":
			if state.battery != "" {
				continue
			}
			state.battery = name
			if status, ok := r.readValue(filepath.Join(supply, "status")); ok {
				state.status = strings.ToLower(status)
			}
			if raw, ok := r.readValue(filepath.Join(supply, "capacity")); ok {
				if pct, err := strconv.ParseFloat(raw, 64); err == nil {
					state.capacity = &pct
				}
			}
		}
	}
	return classifySupply(state), state.capacity
}

func classifySupply(state supplyState) power.PowerSource {
	if state.mainsOnline {
		return power.SourceAC
	}
	switch {
	case strings.Contains(state.status, "discharging"):
		return power.SourceBattery
	case strings.Contains(state.status, "charging"), strings.Contains(state.status, "full"):
		return power.SourceAC
	}
	if state.mainsOffline {
		return power.SourceBattery
	}
	return power.SourceUnknown
}

func (r *Reader) readLoad() float64 {
	path := filepath.Join(r.procRoot, "loadavg")
	data, err := os.ReadFile(path)
	if err == nil {
		fields := strings.Fields(string(data))
		if len(fields) > 0 {
			if load, err := strconv.ParseFloat(fields[0], 64); err == nil {
				return load
			}
		}
		r.reportMissing(path, errors.New("malformed loadavg"))
	} else {
		r.reportMissing(path, err)
	}
	load, err := r.loadFallback()
	if err != nil {
		r.reportMissing("sysinfo", err)
		return 0
	}
	return load
}

func (r *Reader) readValue(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		r.reportMissing(path, err)
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// reportMissing logs each unreadable path once at debug level.
func (r *Reader) reportMissing(path string, err error) {
	if _, seen := r.reported[path]; seen {
		return
	}
	r.reported[path] = struct{}{}
	reason := "unreadable"
	if errors.Is(err, fs.ErrNotExist) {
		reason = "missing"
	}
	r.logger.Debug("sensor input unavailable",
		logging.String("path", path),
		logging.String("reason", reason),
		logging.Error(err),
	)
}

func sysinfoLoad() (float64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	return float64(info.Loads[0]) / float64(1<<16), nil
}
