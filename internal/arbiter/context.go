package arbiter

import (
	"time"

	"dynpower/internal/power"
	"dynpower/internal/sensors"
)

// Context is the arbitration state carried between cycles.
type Context struct {
	// Manual is the user's explicit override; ModeDynamic means none.
	Manual power.ManualOverride
	// Thresholds are the base hysteresis thresholds before any inhibit.
	Thresholds power.Thresholds

	lastApplied *power.Target
	lastAttempt *power.Target
	attempts    int
	applyState  power.ApplyState
	cycles      uint64
	debounced   uint64
}

// NewContext creates a context with no override.
func NewContext(thresholds power.Thresholds) *Context {
	return &Context{
		Manual:     power.ManualOverride{Mode: power.ModeDynamic},
		Thresholds: thresholds.Clamped(),
		applyState: power.ApplyIdle,
	}
}

// Inputs assembles a cycle's inputs from the context and the observations.
func (c *Context) Inputs(process *power.ProcessOverrideRule, sample sensors.Sample, table power.ProfileTable, now time.Time) Inputs {
	return Inputs{
		Manual:     c.Manual,
		Process:    process,
		Sample:     sample,
		Thresholds: c.Thresholds,
		Table:      table,
		Now:        now,
	}
}

// LastApplied returns the last confirmed target.
func (c *Context) LastApplied() (power.Target, bool) {
	if c.lastApplied == nil {
		return power.Target{}, false
	}
	return *c.lastApplied, true
}

// LastAttempt returns the last failed target.
func (c *Context) LastAttempt() (power.Target, bool) {
	if c.lastAttempt == nil {
		return power.Target{}, false
	}
	return *c.lastAttempt, true
}

// ApplyState reports the state machine position.
func (c *Context) ApplyState() power.ApplyState {
	return c.applyState
}

// Attempts is the number of attempts made for the current or last failed
// target.
func (c *Context) Attempts() int {
	return c.attempts
}

// Cycles counts completed cycles.
func (c *Context) Cycles() uint64 {
	return c.cycles
}

// Debounced counts cycles that skipped the applier because the decision was
// already confirmed.
func (c *Context) Debounced() uint64 {
	return c.debounced
}

// ResetFailure forgets the last failed target so the next cycle retries it.
func (c *Context) ResetFailure() {
	c.lastAttempt = nil
	if c.applyState == power.ApplyFailed {
		c.applyState = power.ApplyIdle
	}
}

// Forget drops the confirmed target so the next cycle applies again even if
// the decision is unchanged.
func (c *Context) Forget() {
	c.lastApplied = nil
}
