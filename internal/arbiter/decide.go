package arbiter

import (
	"fmt"
	"strings"
	"time"

	"dynpower/internal/power"
	"dynpower/internal/sensors"
)

// Inputs is everything one arbitration pass reads.
type Inputs struct {
	Manual     power.ManualOverride
	Process    *power.ProcessOverrideRule
	Sample     sensors.Sample
	Thresholds power.Thresholds
	Table      power.ProfileTable
	Now        time.Time
}

type clause struct {
	source power.DecisionSource
	mode   power.Mode
	boss   bool
	label  string
}

// Decide resolves inputs to a decision.
func Decide(in Inputs) power.Decision {
	thresholds := in.Thresholds.Clamped()
	table := in.Table
	if table.OnAC == nil {
		table = power.DefaultProfileTable()
	}
	decision := power.Decision{
		PowerSource: in.Sample.Source,
		CycleAt:     in.Now,
	}
	onBattery := in.Sample.Source == power.SourceBattery

	var notes []string
	var clauses []clause
	if in.Manual.Active() {
		clauses = append(clauses, clause{source: power.SourceManual, mode: in.Manual.Mode, boss: in.Manual.Boss, label: "manual"})
	}
	if in.Process != nil && in.Process.Mode != "" && in.Process.Mode != power.ModeDynamic {
		label := "process " + processLabel(*in.Process)
		clauses = append(clauses, clause{source: power.SourceProcess, mode: in.Process.Mode, label: label})
	}

	for _, c := range clauses {
		if c.mode == power.ModeInhibitPowersave {
			if !decision.Inhibited {
				thresholds = thresholds.Inhibited()
				decision.Inhibited = true
			}
			notes = append(notes, c.label+" inhibit powersave")
			continue
		}
		profile, ok := c.mode.Profile()
		if !ok {
			continue
		}
		if onBattery && !c.boss && c.mode.Vetoable() {
			decision.Vetoes = append(decision.Vetoes, power.Veto{Source: c.source, Mode: c.mode})
			notes = append(notes, fmt.Sprintf("battery veto: %s %s", c.label, profile))
			continue
		}
		decision.Profile = profile
		decision.Source = c.source
		decision.Thresholds = thresholds
		decision.LoadLevel = Classify(in.Sample.Load1m, thresholds)
		reason := fmt.Sprintf("%s %s", c.label, profile)
		if c.boss {
			reason += " (boss)"
		}
		decision.Reason = joinReason(notes, reason)
		return decision
	}

	level := Classify(in.Sample.Load1m, thresholds)
	decision.Profile = table.Lookup(in.Sample.Source, level)
	decision.Source = power.SourceDynamic
	decision.Thresholds = thresholds
	decision.LoadLevel = level
	reason := fmt.Sprintf("dynamic %s/%s", sourceLabel(in.Sample.Source), level)
	if onBattery {
		reason = "dynamic battery default"
	}
	decision.Reason = joinReason(notes, reason)
	return decision
}

func processLabel(rule power.ProcessOverrideRule) string {
	if rule.Name != "" {
		return rule.Name
	}
	return rule.ProcessName
}

func sourceLabel(source power.PowerSource) string {
	if source == "" {
		return string(power.SourceUnknown)
	}
	return string(source)
}

func joinReason(notes []string, reason string) string {
	if len(notes) == 0 {
		return reason
	}
	return strings.Join(append(notes, reason), "; ")
}
