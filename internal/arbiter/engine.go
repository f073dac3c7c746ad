package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dynpower/internal/applier"
	"dynpower/internal/logging"
	"dynpower/internal/power"
	"dynpower/internal/state"
)

const (
	defaultRetries    = 2
	defaultRetryDelay = 250 * time.Millisecond
)

// CycleResult describes what one cycle did.
type CycleResult struct {
	Decision  power.Decision
	State     power.ApplyState
	Applied   bool
	Debounced bool
	Skipped   bool
	Attempts  int
	Changed   bool
	Err       error
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRetries sets how many extra attempts follow a failed apply.
func WithRetries(retries int) Option {
	return func(e *Engine) {
		if retries >= 0 {
			e.retries = retries
		}
	}
}

// WithRetryDelay sets the fixed delay between attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(e *Engine) {
		if delay >= 0 {
			e.delay = delay
		}
	}
}

// WithSleep replaces the delay implementation (primarily for tests).
func WithSleep(sleep func(context.Context, time.Duration)) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// Engine runs arbitration cycles against an applier and publishes confirmed
// state.
type Engine struct {
	applier   applier.Applier
	publisher *state.Publisher
	logger    *slog.Logger
	retries   int
	delay     time.Duration
	sleep     func(context.Context, time.Duration)
	ctx       *Context
}

// NewEngine creates an engine. The Context is owned by the engine's caller
// through Context().
func NewEngine(a applier.Applier, publisher *state.Publisher, arb *Context, logger *slog.Logger, opts ...Option) *Engine {
	if arb == nil {
		arb = NewContext(power.NewThresholds(1, 2))
	}
	if publisher == nil {
		publisher = state.NewPublisher(power.DaemonState{})
	}
	e := &Engine{
		applier:   a,
		publisher: publisher,
		logger:    logging.NewComponentLogger(logger, "arbiter"),
		retries:   defaultRetries,
		delay:     defaultRetryDelay,
		sleep:     sleepContext,
		ctx:       arb,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Context returns the arbitration context.
func (e *Engine) Context() *Context {
	return e.ctx
}

// Publisher returns the state publisher the engine commits to.
func (e *Engine) Publisher() *state.Publisher {
	return e.publisher
}

// ResetFailure clears the failed-target guard.
func (e *Engine) ResetFailure() {
	e.ctx.ResetFailure()
}

// Cycle decides, applies when needed, and publishes.
func (e *Engine) Cycle(ctx context.Context, in Inputs) CycleResult {
	decision := Decide(in)
	target := decision.Target()
	arb := e.ctx
	arb.cycles++

	for _, veto := range decision.Vetoes {
		e.logger.Info("override vetoed on battery",
			logging.String(logging.FieldEventType, "battery_veto"),
			logging.String(logging.FieldDecisionSource, string(veto.Source)),
			logging.String("mode", string(veto.Mode)),
		)
	}

	result := CycleResult{Decision: decision}

	if last, ok := arb.LastApplied(); ok && last.Equal(target) {
		arb.lastAttempt = nil
		arb.attempts = 0
		arb.applyState = power.ApplyConfirmed
		arb.debounced++
		e.publishMetadata(decision)
		result.State = power.ApplyConfirmed
		result.Debounced = true
		return result
	}

	if failed, ok := arb.LastAttempt(); ok && failed.Equal(target) {
		e.publishMetadata(decision)
		result.State = power.ApplyFailed
		result.Skipped = true
		result.Attempts = arb.attempts
		return result
	}

	arb.applyState = power.ApplyApplying
	total := 1 + e.retries
	var lastErr error
	for attempt := 1; attempt <= total; attempt++ {
		if attempt > 1 {
			e.sleep(ctx, e.delay)
		}
		arb.attempts = attempt
		err := e.applyOnce(ctx, target)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		e.logger.Debug("apply attempt failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", total),
			logging.String(logging.FieldProfile, string(target.Profile)),
			logging.Error(err),
		)
	}
	result.Attempts = arb.attempts

	if lastErr != nil {
		failed := target
		arb.lastAttempt = &failed
		arb.applyState = power.ApplyFailed
		result.State = power.ApplyFailed
		result.Err = lastErr
		e.publishMetadata(decision)
		logging.ErrorWithContext(e.logger, "profile apply failed", "profile_apply_failed",
			logging.String(logging.FieldProfile, string(target.Profile)),
			logging.Thresholds(target.Thresholds.Low, target.Thresholds.High),
			logging.String("applier", e.applier.Name()),
			logging.Int("attempts", arb.attempts),
			logging.Error(lastErr),
			logging.String(logging.FieldErrorHint, "check that the profile backend is installed and running"),
			logging.String(logging.FieldImpact, "previous profile remains active"),
		)
		return result
	}

	applied := target
	arb.lastApplied = &applied
	arb.lastAttempt = nil
	arb.applyState = power.ApplyConfirmed
	attempts := arb.attempts
	arb.attempts = 0

	next := e.publisher.Snapshot()
	next.ActiveProfile = target.Profile
	next.ThresholdLow = target.Thresholds.Low
	next.ThresholdHigh = target.Thresholds.High
	next.LastUpdated = decision.CycleAt
	next.LastCycle = decision.CycleAt
	next.ApplyState = power.ApplyConfirmed
	next.ApplyAttempts = attempts
	next.PowerSource = decision.PowerSource
	next.DecisionSource = decision.Source
	result.Changed = e.publisher.Commit(next)
	result.State = power.ApplyConfirmed
	result.Applied = true

	attrs := append(logging.DecisionAttrs(string(target.Profile), string(decision.Source), decision.Reason),
		logging.String(logging.FieldEventType, "profile_applied"),
		logging.Thresholds(target.Thresholds.Low, target.Thresholds.High),
		logging.String(logging.FieldPowerSource, string(decision.PowerSource)),
		logging.Int("attempts", attempts),
	)
	e.logger.Info("profile applied", logging.Args(attrs...)...)
	return result
}

func (e *Engine) applyOnce(ctx context.Context, target power.Target) error {
	if e.applier == nil {
		return errors.New("no applier configured")
	}
	if err := e.applier.Apply(ctx, target.Profile); err != nil {
		return err
	}
	if confirmer, ok := e.applier.(applier.TargetConfirmer); ok {
		got, err := confirmer.ActiveTarget(ctx)
		if err != nil {
			return fmt.Errorf("read back: %w", err)
		}
		if !got.Equal(target) {
			return fmt.Errorf("%w: want %s %s, got %s %s", applier.ErrNotConfirmed,
				target.Profile, target.Thresholds, got.Profile, got.Thresholds)
		}
		return nil
	}
	got, err := e.applier.Active(ctx)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	if got != target.Profile {
		return fmt.Errorf("%w: want %s, got %s", applier.ErrNotConfirmed, target.Profile, got)
	}
	return nil
}

// publishMetadata records liveness and decision context without touching
// the applied profile or thresholds.
func (e *Engine) publishMetadata(decision power.Decision) {
	current := e.publisher.Snapshot()
	next := current
	next.PowerSource = decision.PowerSource
	next.ApplyState = e.ctx.applyState
	next.ApplyAttempts = e.ctx.attempts
	if e.ctx.applyState == power.ApplyConfirmed {
		next.DecisionSource = decision.Source
	}
	if next == current {
		e.publisher.Touch(decision.CycleAt)
		return
	}
	next.LastCycle = decision.CycleAt
	e.publisher.Commit(next)
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
