package daemon

import (
	"context"
	"time"

	"dynpower/internal/ipc"
	"dynpower/internal/logging"
	"dynpower/internal/power"
)

var _ ipc.DaemonHandler = (*Daemon)(nil)

// DaemonState returns the published state without waiting on the loop.
func (d *Daemon) DaemonState() power.DaemonState {
	return d.engine.Publisher().Snapshot()
}

// WaitStateChange blocks until the published version exceeds since.
func (d *Daemon) WaitStateChange(ctx context.Context, since uint64) (power.DaemonState, bool) {
	return d.engine.Publisher().WaitChange(ctx, since)
}

// SetUserProfile replaces the manual override. Dynamic clears it.
func (d *Daemon) SetUserProfile(ctx context.Context, override power.ManualOverride) error {
	return d.submit(ctx, "SetUserProfile", func() error {
		arb := d.engine.Context()
		arb.Manual = override
		arb.ResetFailure()
		d.logger.Info("manual override set",
			logging.String(logging.FieldEventType, "manual_override_set"),
			logging.String("mode", string(override.Mode)),
			logging.Bool("boss", override.Boss),
		)
		return nil
	})
}

// SetLoadThresholds replaces the base thresholds until the configured ones
// change.
func (d *Daemon) SetLoadThresholds(ctx context.Context, thresholds power.Thresholds) (power.Thresholds, error) {
	if err := thresholds.Validate(); err != nil {
		return power.Thresholds{}, err
	}
	clamped := thresholds.Clamped()
	err := d.submit(ctx, "SetLoadThresholds", func() error {
		arb := d.engine.Context()
		arb.Thresholds = clamped
		arb.ResetFailure()
		return nil
	})
	return clamped, err
}

// SetPollInterval changes the cycle interval until the configured one
// changes.
func (d *Daemon) SetPollInterval(ctx context.Context, seconds int) (int, error) {
	seconds = power.ClampPollSeconds(seconds)
	err := d.submit(ctx, "SetPollInterval", func() error {
		d.interval.Store(int64(time.Duration(seconds) * time.Second))
		return nil
	})
	return seconds, err
}

// SetProcessOverride stores a session's matched rules. Each call refreshes
// the session's expiry.
func (d *Daemon) SetProcessOverride(ctx context.Context, sessionID string, uid int, matches []ipc.ProcessMatch) error {
	return d.submit(ctx, "SetProcessOverride", func() error {
		if d.storeForwarded(sessionID, uid, matches, d.now()) {
			d.engine.ResetFailure()
		}
		return nil
	})
}
