package daemonrun

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dynpower/internal/config"
	"dynpower/internal/deps"
	"dynpower/internal/logging"
)

// Log file prefixes. Each run writes <prefix>-<timestamp>.log and points
// <prefix>.log at it.
const (
	DaemonLogName  = "dynpowerd"
	SessionLogName = "dynpower-session"
)

// CurrentLogPath returns the stable pointer to the newest log for name.
func CurrentLogPath(logDir, name string) string {
	return filepath.Join(logDir, name+".log")
}

func ensureCurrentLogPointer(logDir, name, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, name)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := deps.Check(deps.Requirements(cfg))
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("applier_backend", cfg.Applier.Backend),
		logging.Bool("epp_enabled", cfg.EPP.Enabled),
	}
	for _, status := range statuses {
		attrs = append(attrs, logging.Bool(status.Name+"_available", status.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	if missing := deps.Missing(statuses); len(missing) > 0 {
		logging.WarnWithContext(logger, "required dependencies missing", "dependency_missing",
			logging.Alert("profile backend unavailable"),
			logging.String("missing", strings.Join(missing, ", ")),
			logging.String(logging.FieldImpact, "profile changes will fail until installed"),
			logging.String(logging.FieldErrorHint, "install the missing tool or switch applier.backend"),
		)
	}
}
