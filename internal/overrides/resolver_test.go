package overrides_test

import (
	"testing"

	"dynpower/internal/overrides"
	"dynpower/internal/power"
)

func running(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func TestResolveNoMatch(t *testing.T) {
	rules := []power.ProcessOverrideRule{{ProcessName: "steam", Priority: 1, Mode: power.ModePerformance}}
	if _, ok := overrides.Resolve(rules, running("bash")); ok {
		t.Fatal("expected no match")
	}
	if _, ok := overrides.Resolve(nil, running("bash")); ok {
		t.Fatal("expected no match for empty rules")
	}
}

func TestResolveHighestPriorityWins(t *testing.T) {
	rules := []power.ProcessOverrideRule{
		{ProcessName: "music-player", Priority: 1, Mode: power.ModeBalanced},
		{ProcessName: "video-encoder", Priority: 10, Mode: power.ModePerformance},
		{ProcessName: "idle", Priority: 50, Mode: power.ModePowersave},
	}
	res, ok := overrides.Resolve(rules, running("music-player", "video-encoder"))
	if !ok {
		t.Fatal("expected a match")
	}
	if res.Winner.ProcessName != "video-encoder" || res.Winner.Mode != power.ModePerformance {
		t.Fatalf("unexpected winner %+v", res.Winner)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(res.Matches))
	}
	if !res.Matches[0].Selected || res.Matches[1].Selected {
		t.Fatalf("unexpected selection flags %+v", res.Matches)
	}
	if res.Matches[1].Rule.ProcessName != "music-player" {
		t.Fatalf("expected matches ranked by priority, got %+v", res.Matches)
	}
}

func TestResolveTieBreaksByListOrder(t *testing.T) {
	rules := []power.ProcessOverrideRule{
		{Name: "first", ProcessName: "a", Priority: 5, Mode: power.ModeBalanced},
		{Name: "second", ProcessName: "b", Priority: 5, Mode: power.ModePerformance},
		{Name: "third", ProcessName: "c", Priority: 5, Mode: power.ModePowersave},
	}
	for i := 0; i < 50; i++ {
		res, ok := overrides.Resolve(rules, running("c", "b", "a"))
		if !ok || res.Winner.Name != "first" {
			t.Fatalf("iteration %d: expected first rule to win, got %+v", i, res.Winner)
		}
		if res.Matches[1].Rule.Name != "second" || res.Matches[2].Rule.Name != "third" {
			t.Fatalf("iteration %d: unstable ranking %+v", i, res.Matches)
		}
	}
}

func TestResolveIgnoresEmptyProcessName(t *testing.T) {
	rules := []power.ProcessOverrideRule{{ProcessName: "  ", Priority: 100, Mode: power.ModePerformance}}
	if _, ok := overrides.Resolve(rules, running("", "  ")); ok {
		t.Fatal("empty process names must never match")
	}
}

func TestSummaryAndRoundTripHelpers(t *testing.T) {
	rules := []power.ProcessOverrideRule{
		{Name: "Games", ProcessName: "steam", Priority: 3, Mode: power.ModePerformance},
		{Name: "Builds", ProcessName: "make", Priority: 2, Mode: power.ModeInhibitPowersave},
	}
	res, _ := overrides.Resolve(rules, running("steam", "make"))
	summary := res.Summary()
	if len(summary) != 2 || !summary[0].Active || summary[0].ProcessName != "steam" || summary[1].Active {
		t.Fatalf("unexpected summary %+v", summary)
	}

	names := overrides.RunningFromSummaries(summary)
	if _, ok := names["make"]; !ok || len(names) != 2 {
		t.Fatalf("unexpected running set %v", names)
	}

	back := overrides.RulesFromSummaries(append(summary, overrides.MatchSummary{ProcessName: "x", Mode: "bogus"}))
	if len(back) != 2 || back[1].Mode != power.ModeInhibitPowersave {
		t.Fatalf("unexpected rules %+v", back)
	}
}
