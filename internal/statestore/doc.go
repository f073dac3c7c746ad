// Package statestore persists the last-known DaemonState in SQLite.
//
// Only the latest record is kept: one row holding the applied profile,
// thresholds, apply state, and the reason behind the decision. The daemon
// writes it whenever the published state changes so `dynpower status` can
// report the last decision while the daemon is stopped. Nothing read from
// the store feeds back into arbitration; overrides are not restored across
// restarts.
//
// Schema changes ship as embedded migrations applied inside a transaction on
// Open. Writes retry briefly on SQLITE_BUSY so a concurrent reader never
// fails a cycle.
package statestore
