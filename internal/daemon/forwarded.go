package daemon

import (
	"cmp"
	"slices"
	"time"

	"dynpower/internal/logging"
	"dynpower/internal/overrides"
	"dynpower/internal/power"
)

// forwardedTTLIntervals is how many poll intervals a session's forwarded
// matches survive without a refresh.
const forwardedTTLIntervals = 3

// forwardedKey scopes a session id to the uid that sent it, so one user
// cannot replace or clear another user's matches.
type forwardedKey struct {
	uid       int
	sessionID string
}

func compareForwardedKeys(a, b forwardedKey) int {
	if c := cmp.Compare(a.uid, b.uid); c != 0 {
		return c
	}
	return cmp.Compare(a.sessionID, b.sessionID)
}

type forwardedOverride struct {
	matches []overrides.MatchSummary
	expires time.Time
}

// storeForwarded records or clears a session's matches and reports whether
// the effective set changed.
func (d *Daemon) storeForwarded(sessionID string, uid int, matches []overrides.MatchSummary, now time.Time) bool {
	key := forwardedKey{uid: uid, sessionID: sessionID}
	prev, existed := d.forwarded[key]
	if len(matches) == 0 {
		delete(d.forwarded, key)
		d.sessions.Store(int64(len(d.forwarded)))
		return existed
	}
	d.forwarded[key] = forwardedOverride{
		matches: slices.Clone(matches),
		expires: now.Add(forwardedTTLIntervals * d.PollInterval()),
	}
	d.sessions.Store(int64(len(d.forwarded)))
	return !existed || !slices.Equal(prev.matches, matches)
}

// expireForwarded drops sessions that stopped refreshing.
func (d *Daemon) expireForwarded(now time.Time) {
	for key, entry := range d.forwarded {
		if now.Before(entry.expires) {
			continue
		}
		delete(d.forwarded, key)
		d.logger.Info("forwarded process override expired",
			logging.String(logging.FieldEventType, "process_override_expired"),
			logging.String(logging.FieldSessionID, key.sessionID),
			logging.Int("uid", key.uid),
		)
	}
	d.sessions.Store(int64(len(d.forwarded)))
}

// resolveForwarded picks the winning rule across all sessions.
func (d *Daemon) resolveForwarded() *power.ProcessOverrideRule {
	keys := make([]forwardedKey, 0, len(d.forwarded))
	for key := range d.forwarded {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, compareForwardedKeys)

	var rules []power.ProcessOverrideRule
	running := make(map[string]struct{})
	for _, key := range keys {
		matches := d.forwarded[key].matches
		rules = append(rules, overrides.RulesFromSummaries(matches)...)
		for name := range overrides.RunningFromSummaries(matches) {
			running[name] = struct{}{}
		}
	}

	resolution, ok := overrides.Resolve(rules, running)
	label := ""
	if ok {
		label = resolution.Winner.ProcessName + "/" + string(resolution.Winner.Mode)
	}
	if label != d.processLabel {
		if ok {
			d.logger.Info("process override active",
				logging.String(logging.FieldEventType, "process_override_selected"),
				logging.String("process", resolution.Winner.ProcessName),
				logging.String("mode", string(resolution.Winner.Mode)),
				logging.Int("priority", resolution.Winner.Priority),
			)
		} else {
			d.logger.Info("process override cleared",
				logging.String(logging.FieldEventType, "process_override_cleared"),
			)
		}
		d.processLabel = label
	}
	if !ok {
		return nil
	}
	winner := resolution.Winner
	return &winner
}
