package ipc

import (
	"context"

	"dynpower/internal/power"
)

// Peer identifies the process on the other end of a connection.
type Peer struct {
	UID   int
	PID   int
	Known bool
}

// DaemonHandler is implemented by the privileged daemon.
type DaemonHandler interface {
	DaemonState() power.DaemonState
	SetUserProfile(ctx context.Context, override power.ManualOverride) error
	SetLoadThresholds(ctx context.Context, thresholds power.Thresholds) (power.Thresholds, error)
	SetPollInterval(ctx context.Context, seconds int) (int, error)
	SetProcessOverride(ctx context.Context, sessionID string, uid int, matches []ProcessMatch) error
	WaitStateChange(ctx context.Context, since uint64) (power.DaemonState, bool)
}

// SessionHandler is implemented by the per-session process.
type SessionHandler interface {
	Metrics() SessionMetrics
	ProcessMatches() []ProcessMatch
	UserOverride() power.ManualOverride
	SetUserOverride(ctx context.Context, override power.ManualOverride) error
	UpdateProcessMatches(ctx context.Context, matches []ProcessMatch) error
	WaitPowerStateChanged(ctx context.Context, since uint64) (PowerStateEvent, bool)
}
