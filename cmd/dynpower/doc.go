// Package main hosts the dynpower CLI.
//
// `dynpower session` runs the unprivileged per-session process. Every other
// subcommand is a thin bus client: daemon-wide settings (profile, thresholds,
// poll interval) go to dynpowerd, per-user settings (override, pushed process
// matches) go to the caller's session, and status falls back to the daemon's
// saved state when it is not running. `logs` reads the local log files
// directly and needs neither process.
package main
