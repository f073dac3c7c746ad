package daemonrun

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"dynpower/internal/applier"
	"dynpower/internal/config"
	"dynpower/internal/ipc"
	"dynpower/internal/logging"
	"dynpower/internal/procscan"
	"dynpower/internal/sensors"
	"dynpower/internal/session"
)

// RunSession starts the per-user session process and blocks until ctx is
// canceled or the process receives SIGINT/SIGTERM. The daemon does not need
// to be reachable at startup; the session redials every cycle.
func RunSession(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	cfg = cfg.WithRole(config.RoleSession)

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	sessionID := uuid.NewString()
	rt, err := newRuntime(cfg, opts, SessionLogName, sessionID)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	monitor := sensors.NewUeventMonitor(logger)
	if err := monitor.Start(signalCtx); err != nil {
		return fmt.Errorf("start uevent monitor: %w", err)
	}
	defer monitor.Stop()

	watcher := startWatcher(signalCtx, opts.ConfigPath, config.RoleSession, logger)

	socket := cfg.Paths.DaemonSocket
	timeout := cfg.CallTimeout()
	dial := func() (session.DaemonClient, error) {
		client, err := ipc.DialDaemon(socket, timeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	s, err := session.New(config.NewStore(cfg), session.Deps{
		Sampler:       sensors.NewReader(cfg.Paths.SysfsRoot, cfg.Paths.ProcRoot, logger),
		Scanner:       procscan.NewForCurrentUser(cfg.Paths.ProcRoot),
		Dial:          dial,
		Executor:      applier.CommandExecutor{},
		Wake:          monitor.Wake(),
		ConfigUpdates: watcher.updates(),
	}, logger, sessionID)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	if err := s.Start(signalCtx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer s.Stop()
	if err := rt.writePID(); err != nil {
		return err
	}

	ipcServer, err := ipc.NewSessionServer(signalCtx, cfg.Paths.SessionSocket, s, logger)
	if err != nil {
		return fmt.Errorf("start session IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	startMetrics(signalCtx, cfg, s.Health, logger)

	logger.Info("session started",
		logging.String(logging.FieldEventType, "session_started"),
		logging.String("socket", cfg.Paths.SessionSocket),
		logging.String("daemon_socket", socket),
		logging.Bool("scan_processes", cfg.Session.ScanProcesses),
	)

	select {
	case <-signalCtx.Done():
	case <-s.Done():
	}
	logger.Info("session shutting down", logging.String(logging.FieldEventType, "session_stopping"))
	return nil
}
