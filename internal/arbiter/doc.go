// Package arbiter reduces the manual override, the winning process override,
// and the sensor sample to one power profile per cycle, then applies it.
//
// Decide is a pure function. A non-Dynamic manual override is considered
// first, then the process rule, then dynamic load classification. An
// InhibitPowersave request never picks a profile on its own: it drops the
// low threshold to zero and lets the next clause choose. A concrete
// Performance or Balanced request without boss rights is vetoed on battery
// and arbitration falls through.
//
// Engine owns the apply state machine. A decision equal to the last
// confirmed target is debounced. Otherwise the applier is called and read
// back up to 1+retries times with a fixed delay between attempts. When every
// attempt fails the engine remembers the failed target and does not retry it
// until the decision changes or ResetFailure is called, so a broken backend
// cannot cause a tight loop. DaemonState only changes after a confirmed
// read-back.
//
// Context carries the coordinator-owned inputs (manual override and runtime
// thresholds) along with the apply memory. Exactly one loop owns an Engine.
package arbiter
