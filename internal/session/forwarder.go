package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"dynpower/internal/ipc"
	"dynpower/internal/logging"
	"dynpower/internal/metrics"
	"dynpower/internal/power"
)

// ErrDaemonUnreachable is reported by the mirror applier while the daemon
// cannot be reached.
var ErrDaemonUnreachable = errors.New("daemon unreachable")

// DaemonClient is the subset of the daemon bus the session uses.
type DaemonClient interface {
	GetDaemonState() (power.DaemonState, error)
	SetUserProfile(mode power.Mode, boss bool) (ipc.Ack, error)
	SetLoadThresholds(low, high float64) (*ipc.SetLoadThresholdsResponse, error)
	SetProcessOverride(sessionID string, uid int, matches []ipc.ProcessMatch) (ipc.Ack, error)
	Close() error
	Closed() bool
}

// Dialer opens a daemon connection.
type Dialer func() (DaemonClient, error)

// forwarder delivers session inputs to the daemon. Inputs are compared with
// what was last delivered successfully so a failed call is retried on the
// next cycle.
type forwarder struct {
	dial      Dialer
	logger    *slog.Logger
	sessionID string
	uid       int

	mu        sync.Mutex
	client    DaemonClient
	reachable bool
	lastState power.DaemonState

	sentManual     *power.ManualOverride
	sentThresholds *power.Thresholds
	sentMatches    []ipc.ProcessMatch
}

func newForwarder(dial Dialer, sessionID string, uid int, logger *slog.Logger) *forwarder {
	return &forwarder{
		dial:      dial,
		logger:    logger,
		sessionID: sessionID,
		uid:       uid,
	}
}

// conn returns a live client, redialing after a failure.
func (f *forwarder) conn() (DaemonClient, error) {
	if f.client != nil && !f.client.Closed() {
		return f.client, nil
	}
	if f.dial == nil {
		return nil, ErrDaemonUnreachable
	}
	client, err := f.dial()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonUnreachable, err)
	}
	f.client = client
	return client, nil
}

// fail drops the connection so the next call redials. What was delivered is
// forgotten too: a restarted daemon holds none of it.
func (f *forwarder) fail(method string, err error) {
	metrics.ObserveBusError(metrics.RoleSession, method)
	if f.reachable {
		logging.WarnWithContext(f.logger, "daemon bus call failed", "daemon_bus_failed",
			logging.String("method", method),
			logging.Error(err),
			logging.String(logging.FieldImpact, "session inputs are retried next cycle"),
			logging.String(logging.FieldErrorHint, "check that dynpowerd is running"),
		)
	} else {
		f.logger.Debug("daemon bus call failed", logging.String("method", method), logging.Error(err))
	}
	f.reachable = false
	f.sentManual = nil
	f.sentThresholds = nil
	f.sentMatches = nil
	if f.client != nil {
		_ = f.client.Close()
		f.client = nil
	}
}

// forward sends whatever changed since the last successful delivery. The
// process override is sent every cycle so the daemon's copy does not expire.
func (f *forwarder) forward(manual power.ManualOverride, thresholds power.Thresholds, matches []ipc.ProcessMatch) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	client, err := f.conn()
	if err != nil {
		f.fail("Dial", err)
		return false
	}

	if f.sentManual == nil || *f.sentManual != manual {
		mode := manual.Mode
		if mode == "" {
			mode = power.ModeDynamic
		}
		ack, err := client.SetUserProfile(mode, manual.Boss)
		if err != nil {
			f.fail("SetUserProfile", err)
			return false
		}
		if !ack.OK {
			logging.WarnWithContext(f.logger, "daemon refused manual override", "manual_override_refused",
				logging.String("mode", string(mode)),
				logging.String("message", ack.Message),
				logging.String(logging.FieldImpact, "the daemon keeps its previous override"),
			)
		}
		sent := manual
		f.sentManual = &sent
	}

	if f.sentThresholds == nil || !f.sentThresholds.Equal(thresholds) {
		resp, err := client.SetLoadThresholds(thresholds.Low, thresholds.High)
		if err != nil {
			f.fail("SetLoadThresholds", err)
			return false
		}
		f.logger.Debug("thresholds forwarded",
			logging.Float64("low", resp.Low),
			logging.Float64("high", resp.High),
		)
		sent := thresholds
		f.sentThresholds = &sent
	}

	if _, err := client.SetProcessOverride(f.sessionID, f.uid, matches); err != nil {
		f.fail("SetProcessOverride", err)
		return false
	}
	if !slices.Equal(f.sentMatches, matches) {
		f.logger.Debug("process matches forwarded", logging.Int("matches", len(matches)))
		f.sentMatches = slices.Clone(matches)
	}

	if !f.reachable {
		f.logger.Info("daemon reachable",
			logging.String(logging.FieldEventType, "daemon_reachable"),
		)
	}
	f.reachable = true
	return true
}

// readState fetches the daemon's published state.
func (f *forwarder) readState() (power.DaemonState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	client, err := f.conn()
	if err != nil {
		f.fail("Dial", err)
		return power.DaemonState{}, err
	}
	state, err := client.GetDaemonState()
	if err != nil {
		f.fail("GetDaemonState", err)
		return power.DaemonState{}, err
	}
	f.lastState = state
	return state, nil
}

// release withdraws the session's process matches and closes the
// connection.
func (f *forwarder) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil || f.client.Closed() {
		return
	}
	if _, err := f.client.SetProcessOverride(f.sessionID, f.uid, nil); err != nil {
		f.logger.Debug("failed to withdraw process matches", logging.Error(err))
	}
	_ = f.client.Close()
	f.client = nil
}

func (f *forwarder) status() (bool, power.DaemonState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reachable, f.lastState
}

// mirror is an applier whose effect is produced by the daemon. Apply only
// checks reachability; the read-back is the daemon's published target.
type mirror struct {
	fwd *forwarder
}

func (m *mirror) Name() string { return "daemon" }

func (m *mirror) Apply(ctx context.Context, profile power.Profile) error {
	if reachable, _ := m.fwd.status(); !reachable {
		return ErrDaemonUnreachable
	}
	return nil
}

func (m *mirror) Active(ctx context.Context) (power.Profile, error) {
	state, err := m.fwd.readState()
	if err != nil {
		return "", err
	}
	return state.ActiveProfile, nil
}

func (m *mirror) ActiveTarget(ctx context.Context) (power.Target, error) {
	state, err := m.fwd.readState()
	if err != nil {
		return power.Target{}, err
	}
	return state.Target(), nil
}
