// Package logging assembles structured slog loggers and formatting helpers used
// by the dynpower daemon, the session process, and the CLI.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes helpers that keep WARN and ERROR lines shaped the same
// way everywhere: an event_type, a hint for the operator, and the impact of
// the failure. Every process tags its lines with a run_id so interleaved log
// files from the daemon and several sessions can be told apart.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape and routing guarantees as the rest of the system.
package logging
