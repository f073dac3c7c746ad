package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"dynpower/internal/applier"
	"dynpower/internal/config"
	"dynpower/internal/daemon"
	"dynpower/internal/ipc"
	"dynpower/internal/logging"
	"dynpower/internal/metrics"
	"dynpower/internal/sensors"
	"dynpower/internal/statestore"
)

// Options configures process runtime behavior shared by both roles.
type Options struct {
	LogLevel    string
	Development bool
	// ConfigPath is the resolved configuration file watched for edits. An
	// empty path disables hot reload.
	ConfigPath string
}

// Run starts the privileged daemon and blocks until ctx is canceled or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	cfg = cfg.WithRole(config.RoleDaemon)

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := uuid.NewString()
	rt, err := newRuntime(cfg, opts, DaemonLogName, runID)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	logDependencySnapshot(logger, cfg)

	states, err := statestore.Open(cfg.StateDBPath())
	var stateStore daemon.StateStore
	if err != nil {
		logging.WarnWithContext(logger, "state store unavailable; last decision will not persist", "state_store_unavailable",
			logging.String("state_db", cfg.StateDBPath()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the state directory"),
		)
	} else {
		defer states.Close()
		stateStore = states
	}

	backend, err := applier.New(cfg)
	if err != nil {
		return fmt.Errorf("create applier: %w", err)
	}

	monitor := sensors.NewUeventMonitor(logger)
	if err := monitor.Start(signalCtx); err != nil {
		return fmt.Errorf("start uevent monitor: %w", err)
	}
	defer monitor.Stop()

	watcher := startWatcher(signalCtx, opts.ConfigPath, config.RoleDaemon, logger)

	store := config.NewStore(cfg)
	d, err := daemon.New(store, daemon.Deps{
		Sampler:       sensors.NewReader(cfg.Paths.SysfsRoot, cfg.Paths.ProcRoot, logger),
		Applier:       backend,
		EPP:           applier.NewEPPWriter(cfg.Paths.SysfsRoot, logger),
		States:        stateStore,
		Wake:          monitor.Wake(),
		ConfigUpdates: watcher.updates(),
	}, logger, runID)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer d.Stop()
	if err := rt.writePID(); err != nil {
		return err
	}

	ipcServer, err := ipc.NewDaemonServer(signalCtx, cfg.Paths.DaemonSocket, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	startMetrics(signalCtx, cfg, d.Health, logger)

	logger.Info("dynpowerd started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("socket", cfg.Paths.DaemonSocket),
		logging.String("applier", backend.Name()),
		logging.Duration("poll_interval", cfg.PollInterval()),
	)

	select {
	case <-signalCtx.Done():
	case <-d.Done():
	}
	logger.Info("dynpowerd shutting down", logging.String(logging.FieldEventType, "daemon_stopping"))
	return nil
}

// runtime holds the per-process logging and pid file shared by both roles.
type runtime struct {
	logger  *slog.Logger
	logPath    string
	pidPath    string
	pidWritten bool
}

func newRuntime(cfg *config.Config, opts Options, prefix, runID string) (*runtime, error) {
	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("%s-%s.log", prefix, stamp))

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		RunID:            runID,
		ComponentLevels:  cfg.Logging.ComponentLevels,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, prefix+".log", logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s.log link: %v\n", prefix, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: prefix + "-*.log", Exclude: []string{logPath}},
	)
	return &runtime{logger: logger, logPath: logPath, pidPath: cfg.PIDPath()}, nil
}

// writePID records the process id once the instance lock is held.
func (r *runtime) writePID() error {
	if err := writePIDFile(r.pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	r.pidWritten = true
	return nil
}

func (r *runtime) close() {
	if r.pidWritten {
		_ = os.Remove(r.pidPath)
	}
}

// configWatcher couples the fsnotify watcher with SIGHUP-triggered reloads.
type configWatcher struct {
	watcher *config.Watcher
}

func startWatcher(ctx context.Context, path string, role config.Role, logger *slog.Logger) *configWatcher {
	if strings.TrimSpace(path) == "" {
		return &configWatcher{}
	}
	w := config.NewWatcher(path, role, logger)
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(logger, "config watcher stopped", "config_watch_stopped",
				logging.Error(err),
				logging.String(logging.FieldImpact, "configuration edits require a restart"),
			)
		}
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("reload requested", logging.String(logging.FieldEventType, "config_reload_requested"))
				w.Reload()
			}
		}
	}()
	return &configWatcher{watcher: w}
}

func (c *configWatcher) updates() <-chan *config.Config {
	if c == nil || c.watcher == nil {
		return nil
	}
	return c.watcher.Updates()
}

func startMetrics(ctx context.Context, cfg *config.Config, health metrics.HealthFunc, logger *slog.Logger) {
	addr := strings.TrimSpace(cfg.Metrics.Listen)
	if addr == "" {
		return
	}
	server := metrics.NewServer(addr, health, logger)
	go func() {
		if err := server.Run(ctx); err != nil {
			logging.WarnWithContext(logger, "metrics endpoint stopped", "metrics_server_failed",
				logging.String("listen", addr),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "choose a free metrics.listen address"),
			)
		}
	}()
}
