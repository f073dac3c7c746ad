package ipc

import (
	"time"

	"dynpower/internal/overrides"
	"dynpower/internal/power"
)

// Service names registered on each socket.
const (
	DaemonServiceName  = "Dynpower"
	SessionServiceName = "DynpowerSession"
)

// DaemonState mirrors the published daemon state.
type DaemonState = power.DaemonState

// ProcessMatch is one matched process override rule.
type ProcessMatch = overrides.MatchSummary

// Ack is the boolean result of a mutating call. Message explains a refusal.
type Ack struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// PingRequest checks liveness.
type PingRequest struct{}

// PingResponse answers a ping.
type PingResponse struct {
	Message string `json:"message"`
	PID     int    `json:"pid"`
}

// GetDaemonStateRequest fetches the authoritative state.
type GetDaemonStateRequest struct{}

// GetDaemonStateResponse carries the state fields at the top level.
type GetDaemonStateResponse struct {
	DaemonState
}

// SetUserProfileRequest sets or clears the manual override.
type SetUserProfileRequest struct {
	Profile string `json:"profile"`
	IsBoss  bool   `json:"is_boss"`
}

// SetUserProfileResponse reports whether the mode was accepted.
type SetUserProfileResponse = Ack

// SetLoadThresholdsRequest replaces the base thresholds.
type SetLoadThresholdsRequest struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// SetLoadThresholdsResponse reports the clamped thresholds in effect.
type SetLoadThresholdsResponse struct {
	Ack
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// SetPollIntervalRequest changes the cycle interval.
type SetPollIntervalRequest struct {
	Seconds uint `json:"seconds"`
}

// SetPollIntervalResponse reports the clamped interval in effect.
type SetPollIntervalResponse struct {
	Ack
	Seconds uint `json:"seconds"`
}

// SetProcessOverrideRequest forwards a session's matched process rules.
// Sending no matches clears the session's contribution.
type SetProcessOverrideRequest struct {
	SessionID string         `json:"session_id"`
	UID       int            `json:"uid"`
	Matches   []ProcessMatch `json:"matches"`
}

// SetProcessOverrideResponse reports whether the forward was stored.
type SetProcessOverrideResponse = Ack

// WaitStateChangeRequest long-polls for a state version above SinceVersion.
type WaitStateChangeRequest struct {
	SinceVersion uint64 `json:"since_version"`
	WaitMillis   int    `json:"wait_millis"`
}

// WaitStateChangeResponse returns the latest state.
type WaitStateChangeResponse struct {
	Changed bool        `json:"changed"`
	State   DaemonState `json:"state"`
}

// SessionMetrics is the session's view of the last cycle.
type SessionMetrics struct {
	PowerSource     power.PowerSource    `json:"power_source"`
	Load1m          float64              `json:"load_1m"`
	BatteryPercent  *float64             `json:"battery_percent,omitempty"`
	Timestamp       time.Time            `json:"timestamp"`
	ResolvedProfile power.Profile        `json:"resolved_profile"`
	DecisionSource  power.DecisionSource `json:"decision_source"`
	DecisionReason  string               `json:"decision_reason,omitempty"`
	Thresholds      power.Thresholds     `json:"thresholds"`
	LoadLevel       power.LoadLevel      `json:"load_level,omitempty"`
	ApplyState      power.ApplyState     `json:"apply_state"`
	DaemonReachable bool                 `json:"daemon_reachable"`
	DaemonProfile   power.Profile        `json:"daemon_profile,omitempty"`
}

// GetMetricsRequest fetches session metrics.
type GetMetricsRequest struct{}

// GetMetricsResponse carries session metrics.
type GetMetricsResponse struct {
	Metrics SessionMetrics `json:"metrics"`
}

// GetProcessMatchesRequest fetches the ranked matches.
type GetProcessMatchesRequest struct{}

// GetProcessMatchesResponse lists matches, winner first.
type GetProcessMatchesResponse struct {
	Matches []ProcessMatch `json:"matches"`
}

// GetUserOverrideRequest fetches the manual override.
type GetUserOverrideRequest struct{}

// GetUserOverrideResponse carries the manual override.
type GetUserOverrideResponse struct {
	Mode string `json:"mode"`
	Boss bool   `json:"boss"`
}

// SetUserOverrideRequest replaces the manual override.
type SetUserOverrideRequest struct {
	Mode string `json:"mode"`
	Boss bool   `json:"boss"`
}

// SetUserOverrideResponse reports whether the mode was accepted.
type SetUserOverrideResponse = Ack

// UpdateProcessMatchesRequest pushes externally scanned matches.
type UpdateProcessMatchesRequest struct {
	Matches []ProcessMatch `json:"matches"`
}

// UpdateProcessMatchesResponse reports whether the push was stored.
type UpdateProcessMatchesResponse = Ack

// PowerStateEvent is one power source transition.
type PowerStateEvent struct {
	Seq         uint64            `json:"seq"`
	PowerSource power.PowerSource `json:"power_source"`
	At          time.Time         `json:"at"`
}

// WaitPowerStateChangedRequest long-polls for a transition after SinceSeq.
type WaitPowerStateChangedRequest struct {
	SinceSeq   uint64 `json:"since_seq"`
	WaitMillis int    `json:"wait_millis"`
}

// WaitPowerStateChangedResponse returns the latest transition.
type WaitPowerStateChangedResponse struct {
	Changed     bool              `json:"changed"`
	Seq         uint64            `json:"seq"`
	PowerSource power.PowerSource `json:"power_source"`
}
