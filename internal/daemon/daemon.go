package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"dynpower/internal/applier"
	"dynpower/internal/arbiter"
	"dynpower/internal/config"
	"dynpower/internal/logging"
	"dynpower/internal/metrics"
	"dynpower/internal/power"
	"dynpower/internal/sensors"
	"dynpower/internal/state"
	"dynpower/internal/statestore"
)

// ErrNotRunning is returned by bus mutations while the loop is stopped.
var ErrNotRunning = errors.New("daemon loop not running")

// Sampler reads the power source and load.
type Sampler interface {
	Sample(ctx context.Context) sensors.Sample
}

// EPPWriter writes the energy performance preference.
type EPPWriter interface {
	Write(value string) (bool, error)
}

// StateStore persists the last known state.
type StateStore interface {
	Save(ctx context.Context, rec statestore.Record) error
	Load(ctx context.Context) (statestore.Record, error)
}

// Deps are the daemon's collaborators. Sampler and Applier are required.
type Deps struct {
	Sampler Sampler
	Applier applier.Applier
	EPP     EPPWriter
	States  StateStore
	// Wake triggers an early cycle, typically from power_supply uevents.
	Wake <-chan struct{}
	// ConfigUpdates delivers hot-reloaded snapshots.
	ConfigUpdates <-chan *config.Config
	Clock         func() time.Time
	EngineOptions []arbiter.Option
}

// Daemon owns the arbitration loop and enforces single-instance execution.
type Daemon struct {
	store  *config.Store
	logger *slog.Logger
	runID  string

	sampler Sampler
	engine  *arbiter.Engine
	epp     EPPWriter
	states  StateStore
	wake    <-chan struct{}
	updates <-chan *config.Config
	now     func() time.Time

	lockPath string
	lock     *flock.Flock

	requests chan request
	interval atomic.Int64
	sessions atomic.Int64

	// Loop-owned.
	forwarded    map[forwardedKey]forwardedOverride
	processLabel string
	savedVersion uint64

	mu      sync.Mutex
	health  arbiter.CycleResult
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	State        power.DaemonState
	PollInterval time.Duration
	Sessions     int
	LockFilePath string
	StateDBPath  string
}

// New constructs a daemon around the configuration store.
func New(store *config.Store, deps Deps, logger *slog.Logger, runID string) (*Daemon, error) {
	if store == nil || store.Current() == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if deps.Sampler == nil || deps.Applier == nil {
		return nil, errors.New("daemon requires sampler and applier")
	}
	cfg := store.Current()
	logger = logging.NewComponentLogger(logger, "daemon")
	if runID != "" {
		logger = logger.With(logging.String(logging.FieldRunID, runID))
	}

	thresholds := cfg.Thresholds()
	publisher := state.NewPublisher(power.DaemonState{
		ThresholdLow:  thresholds.Low,
		ThresholdHigh: thresholds.High,
		ApplyState:    power.ApplyIdle,
		PowerSource:   power.SourceUnknown,
	})
	opts := []arbiter.Option{
		arbiter.WithRetries(cfg.Applier.Retries),
		arbiter.WithRetryDelay(cfg.RetryDelay()),
	}
	opts = append(opts, deps.EngineOptions...)
	engine := arbiter.NewEngine(deps.Applier, publisher, arbiter.NewContext(thresholds), logger, opts...)

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		store:     store,
		logger:    logger,
		runID:     runID,
		sampler:   deps.Sampler,
		engine:    engine,
		epp:       deps.EPP,
		states:    deps.States,
		wake:      deps.Wake,
		updates:   deps.ConfigUpdates,
		now:       clock,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
		requests:  make(chan request),
		forwarded: make(map[forwardedKey]forwardedOverride),
	}
	d.interval.Store(int64(cfg.PollInterval()))
	return d, nil
}

// Start acquires the daemon lock and launches the cycle loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dynpowerd instance is already running")
	}

	d.restorePrevious(ctx)

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.running.Store(true)
	go d.loop(d.ctx)

	d.logger.Info("dynpowerd started",
		logging.String("lock", d.lockPath),
		logging.Duration("poll_interval", d.PollInterval()),
	)
	return nil
}

// Stop stops the loop and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.done != nil {
		<-d.done
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next start may report another instance"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("dynpowerd stopped")
}

// Done is closed when the loop exits.
func (d *Daemon) Done() <-chan struct{} {
	if d.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return d.done
}

// Running reports whether the loop is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// PollInterval returns the interval currently in effect.
func (d *Daemon) PollInterval() time.Duration {
	return time.Duration(d.interval.Load())
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	cfg := d.store.Current()
	return Status{
		Running:      d.running.Load(),
		State:        d.engine.Publisher().Snapshot(),
		PollInterval: d.PollInterval(),
		Sessions:     int(d.sessions.Load()),
		LockFilePath: d.lockPath,
		StateDBPath:  cfg.StateDBPath(),
	}
}

// LastCycle returns the most recent cycle result.
func (d *Daemon) LastCycle() arbiter.CycleResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.health
}

// restorePrevious logs the state saved by the previous run. The daemon never
// re-applies it: the first cycle decides from live inputs.
func (d *Daemon) restorePrevious(ctx context.Context) {
	if d.states == nil {
		return
	}
	rec, err := d.states.Load(ctx)
	if err != nil {
		if !errors.Is(err, statestore.ErrNoState) {
			logging.WarnWithContext(d.logger, "failed to read previous state", "state_restore_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "offline status may be stale"),
			)
		}
		return
	}
	d.logger.Info("previous run state",
		logging.String(logging.FieldProfile, string(rec.State.ActiveProfile)),
		logging.String("previous_run_id", rec.RunID),
		logging.Time("saved", rec.Saved),
	)
}

// Health summarizes the daemon for /healthz.
func (d *Daemon) Health() metrics.Health {
	snapshot := d.DaemonState()
	status := "ok"
	switch {
	case !d.running.Load():
		status = "stopped"
	case snapshot.ApplyState == power.ApplyFailed:
		status = "apply_failed"
	}
	health := metrics.Health{
		Status:     status,
		Role:       metrics.RoleDaemon,
		Profile:    string(snapshot.ActiveProfile),
		ApplyState: string(snapshot.ApplyState),
	}
	if !snapshot.LastCycle.IsZero() {
		health.LastCycle = snapshot.LastCycle.Format(time.RFC3339)
	}
	return health
}
