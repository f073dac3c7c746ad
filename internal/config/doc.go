// Package config loads, normalizes, and validates dynpower configuration.
//
// Both the privileged daemon and the per-session process read the same schema:
// poll interval, hysteresis thresholds, the per-source profile table, process
// override rules, applier and EPP settings, bus socket paths, and logging. TOML
// is the native format; legacy YAML files written for the original
// dynamic-power tooling are decoded with the same field names.
//
// A loaded Config is treated as an immutable snapshot. Store publishes the
// current snapshot through an atomic pointer and Watcher re-reads the file on
// change, keeping the last good snapshot when a new one fails validation, so
// cycle loops can swap configuration between cycles without locks.
package config
