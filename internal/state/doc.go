// Package state publishes the authoritative DaemonState.
//
// Publisher keeps the last committed snapshot behind an atomic pointer so bus
// queries never wait on the cycle loop and never see a half-updated value.
// Commit bumps the version and notifies subscribers only when the applied
// profile or thresholds changed; liveness updates through Touch are silent.
//
// Subscribers receive the latest state on a one-slot channel. A slow reader
// skips intermediate states instead of blocking the loop. WaitChange wraps
// the same mechanism as a long-poll for bus clients.
package state
