package logging

import (
	"log/slog"
	"strings"
)

type infoField struct {
	label string
	value string
}

var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	FieldProfile,
	FieldDecisionSource,
	"decision_reason",
	FieldPowerSource,
	FieldLoad,
	"load_level",
	"thresholds.low",
	"thresholds.high",
	"apply_state",
	"attempts",
	"error",
	FieldErrorHint,
	FieldImpact,
}

// selectInfoFields returns formatted info-level fields in highlight order
// followed by the rest, and a count of debug-only entries that were hidden.
func selectInfoFields(attrs []kv) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	used := make([]bool, len(attrs))
	result := make([]infoField, 0, len(attrs))
	hidden := 0

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if used[idx] || attr.key != key {
				continue
			}
			used[idx] = true
			result = append(result, infoField{label: displayLabel(attr.key), value: formatInfoValue(attr.value)})
			break
		}
	}

	for idx, attr := range attrs {
		if used[idx] {
			continue
		}
		if isDebugOnlyKey(attr.key) {
			hidden++
			continue
		}
		result = append(result, infoField{label: displayLabel(attr.key), value: formatInfoValue(attr.value)})
	}
	return result, hidden
}

func formatInfoValue(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}
	value := formatValue(v)
	const maxLen = 200
	if len(value) > maxLen {
		value = value[:maxLen] + "…"
	}
	return value
}

func isDebugOnlyKey(key string) bool {
	switch key {
	case "", FieldRunID, FieldSessionID, FieldCycle:
		return true
	}
	return strings.HasSuffix(key, "_path") || strings.HasSuffix(key, "_dir") || strings.HasSuffix(key, "_socket")
}

// sticky labels are printed on every line even when unchanged.
func sticky(label string) bool {
	switch label {
	case "Event", "Alert", "Error", "Hint", "Impact", "Reason":
		return true
	}
	return false
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldErrorHint:
		return "Hint"
	case FieldProfile:
		return "Profile"
	case FieldDecisionSource:
		return "Source"
	case "decision_reason":
		return "Reason"
	case FieldPowerSource:
		return "Power"
	case FieldLoad:
		return "Load"
	case "thresholds.low":
		return "Low"
	case "thresholds.high":
		return "High"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	if len(parts) == 0 {
		return key
	}
	for i, part := range parts {
		lower := strings.ToLower(part)
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}
