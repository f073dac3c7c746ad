package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"dynpower/internal/applier"
	"dynpower/internal/arbiter"
	"dynpower/internal/config"
	"dynpower/internal/ipc"
	"dynpower/internal/logging"
	"dynpower/internal/metrics"
	"dynpower/internal/power"
	"dynpower/internal/sensors"
	"dynpower/internal/state"
)

// ErrNotRunning is returned by bus mutations while the loop is stopped.
var ErrNotRunning = errors.New("session loop not running")

// Sampler reads the power source and load.
type Sampler interface {
	Sample(ctx context.Context) sensors.Sample
}

// Scanner lists the command names of the user's processes.
type Scanner interface {
	Running(ctx context.Context) (map[string]struct{}, error)
}

// Deps are the session's collaborators. Sampler is required. Scanner is
// used only when session.scan_processes is enabled.
type Deps struct {
	Sampler  Sampler
	Scanner  Scanner
	Dial     Dialer
	Executor applier.Executor
	// Wake triggers an early cycle, typically from power_supply uevents.
	Wake          <-chan struct{}
	ConfigUpdates <-chan *config.Config
	Clock         func() time.Time
	EngineOptions []arbiter.Option
}

// Session owns the per-user loop.
type Session struct {
	store     *config.Store
	logger    *slog.Logger
	sessionID string
	uid       int

	sampler Sampler
	scanner Scanner
	fwd     *forwarder
	engine  *arbiter.Engine
	exec    applier.Executor
	wake    <-chan struct{}
	updates <-chan *config.Config
	now     func() time.Time
	events  *powerEvents

	lockPath string
	lock     *flock.Flock

	requests chan request

	// Loop-owned.
	pushed        []ipc.ProcessMatch
	pushedPending bool
	scanFailed    bool

	mu         sync.Mutex
	metrics    ipc.SessionMetrics
	matches    []ipc.ProcessMatch
	manual     power.ManualOverride
	lastResult arbiter.CycleResult

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

type request struct {
	name  string
	apply func() error
	reply chan error
}

// New constructs a session. sessionID identifies this session's forwarded
// process matches on the daemon.
func New(store *config.Store, deps Deps, logger *slog.Logger, sessionID string) (*Session, error) {
	if store == nil || store.Current() == nil {
		return nil, errors.New("session requires configuration")
	}
	if deps.Sampler == nil {
		return nil, errors.New("session requires a sampler")
	}
	if sessionID == "" {
		return nil, errors.New("session requires an id")
	}
	cfg := store.Current()
	logger = logging.NewComponentLogger(logger, "session").With(logging.String(logging.FieldSessionID, sessionID))

	uid := os.Getuid()
	fwd := newForwarder(deps.Dial, sessionID, uid, logger)
	thresholds := cfg.Thresholds()
	publisher := state.NewPublisher(power.DaemonState{
		ThresholdLow:  thresholds.Low,
		ThresholdHigh: thresholds.High,
		PowerSource:   power.SourceUnknown,
	})
	opts := []arbiter.Option{
		arbiter.WithRetries(cfg.Applier.Retries),
		arbiter.WithRetryDelay(cfg.RetryDelay()),
	}
	opts = append(opts, deps.EngineOptions...)
	engine := arbiter.NewEngine(&mirror{fwd: fwd}, publisher, arbiter.NewContext(thresholds), logger, opts...)

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	lockPath := cfg.LockPath()
	return &Session{
		store:     store,
		logger:    logger,
		sessionID: sessionID,
		uid:       uid,
		sampler:   deps.Sampler,
		scanner:   deps.Scanner,
		fwd:       fwd,
		engine:    engine,
		exec:      deps.Executor,
		wake:      deps.Wake,
		updates:   deps.ConfigUpdates,
		now:       clock,
		events:    newPowerEvents(),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
		requests:  make(chan request),
		manual:    power.ManualOverride{Mode: power.ModeDynamic},
	}, nil
}

// Start acquires the session lock and launches the loop.
func (s *Session) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("session already running")
	}
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o700); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dynpower session is already running for this user")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running.Store(true)
	go s.loop(s.ctx)

	s.logger.Info("dynpower session started",
		logging.String("lock", s.lockPath),
		logging.Int("uid", s.uid),
	)
	return nil
}

// Stop stops the loop, withdraws forwarded matches, and releases the lock.
func (s *Session) Stop() {
	if !s.running.Load() {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.done != nil {
		<-s.done
	}
	s.fwd.release()
	if err := s.lock.Unlock(); err != nil {
		logging.WarnWithContext(s.logger, "failed to release session lock", "session_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next start may report another instance"),
		)
	}
	s.ctx = nil
	s.running.Store(false)
	s.logger.Info("dynpower session stopped")
}

// Done is closed when the loop exits.
func (s *Session) Done() <-chan struct{} {
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// Running reports whether the loop is active.
func (s *Session) Running() bool {
	return s.running.Load()
}

// ID returns the session id forwarded to the daemon.
func (s *Session) ID() string {
	return s.sessionID
}

// LastCycle returns the most recent cycle result.
func (s *Session) LastCycle() arbiter.CycleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// Health summarizes the session for /healthz.
func (s *Session) Health() metrics.Health {
	m := s.Metrics()
	status := "ok"
	switch {
	case !s.running.Load():
		status = "stopped"
	case !m.DaemonReachable:
		status = "daemon_unreachable"
	}
	health := metrics.Health{
		Status:     status,
		Role:       metrics.RoleSession,
		Profile:    string(m.ResolvedProfile),
		ApplyState: string(m.ApplyState),
	}
	if !m.Timestamp.IsZero() {
		health.LastCycle = m.Timestamp.Format(time.RFC3339)
	}
	return health
}

var _ ipc.SessionHandler = (*Session)(nil)

// Metrics returns the session's view of the last cycle.
func (s *Session) Metrics() ipc.SessionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// ProcessMatches returns the matched rules from the last cycle, winner
// first.
func (s *Session) ProcessMatches() []ipc.ProcessMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.matches)
}

// UserOverride returns the manual override.
func (s *Session) UserOverride() power.ManualOverride {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manual
}

// SetUserOverride replaces the manual override and runs a cycle before
// returning.
func (s *Session) SetUserOverride(ctx context.Context, override power.ManualOverride) error {
	return s.submit(ctx, "SetUserOverride", func() error {
		arb := s.engine.Context()
		arb.Manual = override
		arb.ResetFailure()
		s.mu.Lock()
		s.manual = override
		s.mu.Unlock()
		s.logger.Info("manual override set",
			logging.String(logging.FieldEventType, "manual_override_set"),
			logging.String("mode", string(override.Mode)),
			logging.Bool("boss", override.Boss),
		)
		return nil
	})
}

// UpdateProcessMatches accepts matches from an external scanner. They are
// re-resolved against the configured rules on the next cycle and replaced by
// the next internal scan when scanning is enabled.
func (s *Session) UpdateProcessMatches(ctx context.Context, matches []ipc.ProcessMatch) error {
	return s.submit(ctx, "UpdateProcessMatches", func() error {
		s.pushed = slices.Clone(matches)
		s.pushedPending = true
		return nil
	})
}

// WaitPowerStateChanged blocks until a transition after since occurs.
func (s *Session) WaitPowerStateChanged(ctx context.Context, since uint64) (ipc.PowerStateEvent, bool) {
	return s.events.wait(ctx, since)
}

func (s *Session) submit(ctx context.Context, name string, apply func() error) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	loopDone := s.Done()
	req := request{name: name, apply: apply, reply: make(chan error, 1)}
	select {
	case s.requests <- req:
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
