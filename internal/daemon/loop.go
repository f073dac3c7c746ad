package daemon

import (
	"context"
	"errors"
	"time"

	"dynpower/internal/applier"
	"dynpower/internal/arbiter"
	"dynpower/internal/config"
	"dynpower/internal/logging"
	"dynpower/internal/metrics"
	"dynpower/internal/power"
	"dynpower/internal/statestore"
)

type request struct {
	name  string
	apply func() error
	reply chan error
}

func (d *Daemon) loop(ctx context.Context) {
	defer close(d.done)

	d.runCycle(ctx, nil)
	timer := time.NewTimer(d.PollInterval())
	defer timer.Stop()

	for {
		var first *request
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-d.wake:
			d.logger.Debug("power supply event; cycling early")
		case cfg := <-d.updates:
			d.applyConfig(cfg)
		case req := <-d.requests:
			first = &req
		}
		if ctx.Err() != nil {
			return
		}
		d.runCycle(ctx, first)
		resetTimer(timer, d.PollInterval())
	}
}

// runCycle applies queued mutations, runs one cycle covering all of them,
// and then answers their callers. A refused mutation is answered at once and
// does not by itself trigger a cycle.
func (d *Daemon) runCycle(ctx context.Context, first *request) {
	var pending []request
	accept := func(req request) {
		if err := req.apply(); err != nil {
			d.logger.Debug("bus request refused", logging.String("request", req.name), logging.Error(err))
			req.reply <- err
			return
		}
		d.logger.Debug("bus request applied", logging.String("request", req.name))
		pending = append(pending, req)
	}
	if first != nil {
		accept(*first)
	}
	for drained := false; !drained; {
		select {
		case req := <-d.requests:
			accept(req)
		default:
			drained = true
		}
	}
	if first != nil && len(pending) == 0 {
		return
	}
	d.cycle(ctx)
	for _, req := range pending {
		req.reply <- nil
	}
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

// cycle runs one arbitration pass.
func (d *Daemon) cycle(ctx context.Context) {
	cfg := d.store.Current()
	now := d.now()
	started := time.Now()

	sample := d.sampler.Sample(ctx)
	d.expireForwarded(now)
	process := d.resolveForwarded()

	in := d.engine.Context().Inputs(process, sample, cfg.ProfileTable(), now)
	result := d.engine.Cycle(ctx, in)

	if result.Applied {
		d.writeEPP(cfg, result.Decision.Profile)
	}
	d.persist(ctx, result)

	metrics.ObserveSample(metrics.RoleDaemon, sample)
	metrics.ObserveCycle(metrics.RoleDaemon, result, time.Since(started))

	d.mu.Lock()
	d.health = result
	d.mu.Unlock()
}

func (d *Daemon) writeEPP(cfg *config.Config, profile power.Profile) {
	if d.epp == nil {
		return
	}
	value, ok := cfg.EPPValue(profile)
	if !ok {
		return
	}
	changed, err := d.epp.Write(value)
	metrics.ObserveEPPWrite(err)
	if err != nil {
		if errors.Is(err, applier.ErrEPPUnavailable) {
			d.logger.Debug("epp interface unavailable", logging.Error(err))
			return
		}
		logging.WarnWithContext(d.logger, "epp write failed", "epp_write_failed",
			logging.String(logging.FieldProfile, string(profile)),
			logging.String("epp", value),
			logging.Error(err),
			logging.String(logging.FieldImpact, "profile applied without matching energy preference"),
			logging.String(logging.FieldErrorHint, "check epp.values against energy_performance_available_preferences"),
		)
		return
	}
	if changed {
		d.logger.Info("epp updated",
			logging.String(logging.FieldEventType, "epp_written"),
			logging.String(logging.FieldProfile, string(profile)),
			logging.String("epp", value),
		)
	}
}

// persist saves the published state whenever its version moved.
func (d *Daemon) persist(ctx context.Context, result arbiter.CycleResult) {
	if d.states == nil {
		return
	}
	snapshot := d.engine.Publisher().Snapshot()
	if snapshot.Version == d.savedVersion && !result.Applied {
		return
	}
	rec := statestore.Record{
		State:  snapshot,
		Reason: result.Decision.Reason,
		RunID:  d.runID,
		Saved:  d.now(),
	}
	if err := d.states.Save(ctx, rec); err != nil {
		logging.WarnWithContext(d.logger, "failed to persist state", "state_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "offline status may be stale"),
			logging.String(logging.FieldErrorHint, "check permissions on the state directory"),
		)
		return
	}
	d.savedVersion = snapshot.Version
}

// applyConfig swaps in a reloaded snapshot between cycles.
func (d *Daemon) applyConfig(next *config.Config) {
	if next == nil {
		return
	}
	prev := d.store.Swap(next)
	metrics.ObserveConfigReload(metrics.RoleDaemon, true)

	arb := d.engine.Context()
	if !prev.Thresholds().Equal(next.Thresholds()) {
		arb.Thresholds = next.Thresholds()
	}
	if prev.PollInterval() != next.PollInterval() {
		d.interval.Store(int64(next.PollInterval()))
	}
	if prev.Applier.Backend != next.Applier.Backend {
		logging.WarnWithContext(d.logger, "applier backend change requires restart", "config_restart_required",
			logging.String("current", prev.Applier.Backend),
			logging.String("configured", next.Applier.Backend),
			logging.String(logging.FieldImpact, "profiles keep using the current backend"),
			logging.String(logging.FieldErrorHint, "restart dynpowerd to switch backends"),
		)
	}
	arb.ResetFailure()
	d.logger.Info("configuration reloaded",
		logging.String(logging.FieldEventType, "config_reloaded"),
		logging.Thresholds(arb.Thresholds.Low, arb.Thresholds.High),
		logging.Duration("poll_interval", d.PollInterval()),
	)
}

// submit hands a mutation to the loop and waits for the cycle that follows.
func (d *Daemon) submit(ctx context.Context, name string, apply func() error) error {
	if !d.running.Load() {
		return ErrNotRunning
	}
	loopDone := d.Done()
	req := request{name: name, apply: apply, reply: make(chan error, 1)}
	select {
	case d.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-loopDone:
		return ErrNotRunning
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-loopDone:
		return ErrNotRunning
	}
}
