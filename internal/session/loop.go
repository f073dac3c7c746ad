package session

import (
	"context"
	"time"

	"dynpower/internal/config"
	"dynpower/internal/ipc"
	"dynpower/internal/logging"
	"dynpower/internal/metrics"
	"dynpower/internal/overrides"
	"dynpower/internal/power"
)

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)

	s.cycle(ctx)
	timer := time.NewTimer(s.store.Current().PollInterval())
	defer timer.Stop()

	for {
		var pending []request
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.wake:
			s.logger.Debug("power supply event; cycling early")
		case cfg := <-s.updates:
			s.applyConfig(cfg)
		case req := <-s.requests:
			pending = s.accept(pending, req)
		}
		for drained := false; !drained; {
			select {
			case req := <-s.requests:
				pending = s.accept(pending, req)
			default:
				drained = true
			}
		}
		if ctx.Err() != nil {
			return
		}
		s.cycle(ctx)
		for _, req := range pending {
			req.reply <- nil
		}
		resetTimer(timer, s.store.Current().PollInterval())
	}
}

func (s *Session) accept(pending []request, req request) []request {
	if err := req.apply(); err != nil {
		s.logger.Debug("bus request refused", logging.String("request", req.name), logging.Error(err))
		req.reply <- err
		return pending
	}
	return append(pending, req)
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

// cycle runs one session pass.
func (s *Session) cycle(ctx context.Context) {
	cfg := s.store.Current()
	now := s.now()
	started := time.Now()

	sample := s.sampler.Sample(ctx)
	resolution, matched := overrides.Resolve(cfg.Rules(), s.runningNames(ctx, cfg))
	matches := resolution.Summary()

	arb := s.engine.Context()
	wasReachable, _ := s.fwd.status()
	if s.fwd.forward(arb.Manual, arb.Thresholds, matches) && !wasReachable {
		// Neither a failure nor a confirmation recorded before the daemon
		// went away says anything about its current state.
		s.engine.ResetFailure()
		arb.Forget()
	}

	var process *power.ProcessOverrideRule
	if matched {
		winner := resolution.Winner
		process = &winner
	}
	in := arb.Inputs(process, sample, cfg.ProfileTable(), now)
	result := s.engine.Cycle(ctx, in)

	metrics.ObserveSample(metrics.RoleSession, sample)
	metrics.ObserveCycle(metrics.RoleSession, result, time.Since(started))

	reachable, daemonState := s.fwd.status()
	snapshot := ipc.SessionMetrics{
		PowerSource:     sample.Source,
		Load1m:          sample.Load1m,
		BatteryPercent:  sample.BatteryPercent,
		Timestamp:       sample.SampledAt,
		ResolvedProfile: result.Decision.Profile,
		DecisionSource:  result.Decision.Source,
		DecisionReason:  result.Decision.Reason,
		Thresholds:      result.Decision.Thresholds,
		LoadLevel:       result.Decision.LoadLevel,
		ApplyState:      result.State,
		DaemonReachable: reachable,
		DaemonProfile:   daemonState.ActiveProfile,
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = now
	}
	s.mu.Lock()
	s.metrics = snapshot
	s.matches = matches
	s.lastResult = result
	s.mu.Unlock()

	if event, changed := s.events.observe(sample.Source, now); changed {
		s.logger.Info("power source changed",
			logging.String(logging.FieldEventType, "power_state_changed"),
			logging.String(logging.FieldPowerSource, string(sample.Source)),
			logging.Uint64("seq", event.Seq),
		)
		s.applyPowerFeatures(ctx, cfg, sample.Source)
	}
}

// runningNames returns the process names rules are resolved against. Pushed
// matches are used once when scanning is enabled and for every cycle when it
// is disabled.
func (s *Session) runningNames(ctx context.Context, cfg *config.Config) map[string]struct{} {
	if s.pushedPending || !cfg.Session.ScanProcesses || s.scanner == nil {
		if cfg.Session.ScanProcesses && s.scanner != nil {
			s.pushedPending = false
		}
		return overrides.RunningFromSummaries(s.pushed)
	}
	running, err := s.scanner.Running(ctx)
	if err != nil {
		if !s.scanFailed {
			logging.WarnWithContext(s.logger, "process scan failed", "process_scan_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "process overrides are not applied this cycle"),
				logging.String(logging.FieldErrorHint, "check that paths.proc_root is readable"),
			)
		}
		s.scanFailed = true
		return nil
	}
	s.scanFailed = false
	s.pushed = nil
	return running
}

// applyConfig swaps in a reloaded snapshot between cycles.
func (s *Session) applyConfig(next *config.Config) {
	if next == nil {
		return
	}
	prev := s.store.Swap(next)
	metrics.ObserveConfigReload(metrics.RoleSession, true)
	if !prev.Thresholds().Equal(next.Thresholds()) {
		s.engine.Context().Thresholds = next.Thresholds()
	}
	s.engine.ResetFailure()
	s.logger.Info("configuration reloaded",
		logging.String(logging.FieldEventType, "config_reloaded"),
		logging.Int("rules", len(next.Rules())),
		logging.Duration("poll_interval", next.PollInterval()),
	)
}
