package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dynpower/internal/daemonctl"
	"dynpower/internal/deps"
	"dynpower/internal/ipc"
	"dynpower/internal/power"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 18
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// displayName turns wire values such as "performance" or "apply_failed" into
// "Performance" and "Apply Failed".
func displayName(value string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "_", " "))
	if value == "" {
		return "Unknown"
	}
	return cases.Title(language.Und).String(value)
}

func applyStateKind(state power.ApplyState) statusKind {
	switch state {
	case power.ApplyConfirmed:
		return statusOK
	case power.ApplyFailed:
		return statusError
	case power.ApplyApplying:
		return statusWarn
	default:
		return statusInfo
	}
}

func formatThresholds(low, high float64) string {
	return fmt.Sprintf("low %.2f / high %.2f", low, high)
}

func formatAge(now, at time.Time) string {
	if at.IsZero() {
		return "never"
	}
	age := now.Sub(at).Round(time.Second)
	if age < 0 {
		age = 0
	}
	return fmt.Sprintf("%s ago", age)
}

func daemonStatusLines(snapshot *daemonctl.StatusSnapshot, now time.Time, colorize bool) []string {
	var lines []string
	switch {
	case snapshot.DaemonRunning:
		detail := "Running"
		if snapshot.DaemonPID > 0 {
			detail = fmt.Sprintf("Running (pid %d)", snapshot.DaemonPID)
		}
		lines = append(lines, renderStatusLine("Daemon", statusOK, detail, colorize))
	case snapshot.Offline:
		detail := "Not running; showing last saved state"
		if !snapshot.SavedAt.IsZero() {
			detail = fmt.Sprintf("Not running; last saved %s", formatAge(now, snapshot.SavedAt))
		}
		lines = append(lines, renderStatusLine("Daemon", statusWarn, detail, colorize))
	default:
		lines = append(lines, renderStatusLine("Daemon", statusError, "Not running", colorize))
		return lines
	}

	state := snapshot.State
	lines = append(lines,
		renderStatusLine("Profile", statusInfo, displayName(string(state.ActiveProfile)), colorize),
		renderStatusLine("Apply state", applyStateKind(state.ApplyState), displayName(string(state.ApplyState)), colorize),
		renderStatusLine("Decision", statusInfo, displayName(string(state.DecisionSource)), colorize),
		renderStatusLine("Power source", statusInfo, string(state.PowerSource), colorize),
		renderStatusLine("Thresholds", statusInfo, formatThresholds(state.ThresholdLow, state.ThresholdHigh), colorize),
		renderStatusLine("Last change", statusInfo, formatAge(now, state.LastUpdated), colorize),
	)
	if snapshot.Offline && snapshot.SavedReason != "" {
		lines = append(lines, renderStatusLine("Reason", statusInfo, snapshot.SavedReason, colorize))
	}
	return lines
}

func sessionStatusLines(metrics *ipc.SessionMetrics, colorize bool) []string {
	if metrics == nil {
		return []string{renderStatusLine("Session", statusWarn, "Not running", colorize)}
	}
	reach := statusOK
	reachDetail := "Reachable"
	if !metrics.DaemonReachable {
		reach = statusError
		reachDetail = "Unreachable"
	}
	lines := []string{
		renderStatusLine("Session", statusOK, "Running", colorize),
		renderStatusLine("Daemon link", reach, reachDetail, colorize),
		renderStatusLine("Resolved profile", statusInfo, displayName(string(metrics.ResolvedProfile)), colorize),
		renderStatusLine("Load (1m)", statusInfo, fmt.Sprintf("%.2f", metrics.Load1m), colorize),
	}
	if metrics.BatteryPercent != nil {
		lines = append(lines, renderStatusLine("Battery", statusInfo, fmt.Sprintf("%.0f%%", *metrics.BatteryPercent), colorize))
	}
	if reason := strings.TrimSpace(metrics.DecisionReason); reason != "" {
		lines = append(lines, renderStatusLine("Reason", statusInfo, reason, colorize))
	}
	return lines
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+1)
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusInfo
			detail += " (optional)"
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	if missing := deps.Missing(statuses); len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}
