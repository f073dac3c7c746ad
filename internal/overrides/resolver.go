package overrides

import (
	"sort"
	"strings"

	"dynpower/internal/power"
)

// Match is one rule whose process is running.
type Match struct {
	Rule     power.ProcessOverrideRule
	Selected bool
}

// MatchSummary is the bus representation of a match.
type MatchSummary struct {
	Name        string     `json:"name,omitempty"`
	ProcessName string     `json:"process_name"`
	Priority    int        `json:"priority"`
	Mode        power.Mode `json:"mode,omitempty"`
	Active      bool       `json:"active"`
}

// Resolution is the outcome of matching rules against running processes.
type Resolution struct {
	Winner  power.ProcessOverrideRule
	Matches []Match
}

// Resolve returns the winning rule and all matches ranked by priority, or
// false when no rule matches.
func Resolve(rules []power.ProcessOverrideRule, running map[string]struct{}) (Resolution, bool) {
	matches := make([]Match, 0, len(rules))
	for _, rule := range rules {
		name := strings.TrimSpace(rule.ProcessName)
		if name == "" {
			continue
		}
		if _, ok := running[name]; !ok {
			continue
		}
		matches = append(matches, Match{Rule: rule})
	}
	if len(matches) == 0 {
		return Resolution{}, false
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Rule.Priority > matches[j].Rule.Priority
	})
	matches[0].Selected = true
	return Resolution{Winner: matches[0].Rule, Matches: matches}, true
}

// Summary converts the matches to their bus representation.
func (r Resolution) Summary() []MatchSummary {
	out := make([]MatchSummary, 0, len(r.Matches))
	for _, m := range r.Matches {
		out = append(out, MatchSummary{
			Name:        m.Rule.Name,
			ProcessName: m.Rule.ProcessName,
			Priority:    m.Rule.Priority,
			Mode:        m.Rule.Mode,
			Active:      m.Selected,
		})
	}
	return out
}

// RunningFromSummaries returns the process names in summaries as a running
// set. Externally pushed matches are re-resolved against configured rules
// through this set.
func RunningFromSummaries(summaries []MatchSummary) map[string]struct{} {
	running := make(map[string]struct{}, len(summaries))
	for _, s := range summaries {
		if name := strings.TrimSpace(s.ProcessName); name != "" {
			running[name] = struct{}{}
		}
	}
	return running
}

// RulesFromSummaries converts forwarded summaries back into rules, dropping
// entries without a usable mode.
func RulesFromSummaries(summaries []MatchSummary) []power.ProcessOverrideRule {
	rules := make([]power.ProcessOverrideRule, 0, len(summaries))
	for _, s := range summaries {
		if strings.TrimSpace(s.ProcessName) == "" {
			continue
		}
		mode, err := power.ParseMode(string(s.Mode))
		if err != nil || mode == power.ModeDynamic {
			continue
		}
		rules = append(rules, power.ProcessOverrideRule{
			Name:        s.Name,
			ProcessName: s.ProcessName,
			Priority:    s.Priority,
			Mode:        mode,
		})
	}
	return rules
}
