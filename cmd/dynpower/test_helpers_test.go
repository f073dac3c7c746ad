package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dynpower/internal/applier"
	"dynpower/internal/config"
	"dynpower/internal/daemon"
	"dynpower/internal/ipc"
	"dynpower/internal/sensors"
	"dynpower/internal/session"
	"dynpower/internal/testsupport"
)

type quietExecutor struct{}

func (quietExecutor) Run(context.Context, string, []string) ([]byte, error) { return nil, nil }

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	daemon     *daemon.Daemon
	session    *session.Session
}

// writeTestConfig renders the parts of cfg the CLI and both processes read.
func writeTestConfig(t *testing.T, path string, cfg *config.Config, extra string) {
	t.Helper()
	content := fmt.Sprintf(`[general]
poll_interval = 1

[applier]
backend = "noop"
retry_delay_ms = 0

[session]
scan_processes = false

[paths]
daemon_socket = %q
session_socket = %q
run_dir = %q
state_dir = %q
log_dir = %q
sysfs_root = %q
proc_root = %q
%s`,
		cfg.Paths.DaemonSocket,
		cfg.Paths.SessionSocket,
		cfg.Paths.RunDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.SysfsRoot,
		cfg.Paths.ProcRoot,
		extra,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// newConfigOnly writes a config file without starting any process.
func newConfigOnly(t *testing.T, extra string) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, config.RoleSession)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg, extra)
	return cfg, configPath
}

// setupCLITestEnv starts a daemon and a session wired over real sockets,
// reading a fake sysfs/proc tree that reports AC power and low load.
func setupCLITestEnv(t *testing.T, extra string) *cliTestEnv {
	t.Helper()

	cfg, configPath := newConfigOnly(t, extra)
	testsupport.OnAC(t, cfg.Paths.SysfsRoot)
	testsupport.LoadAvg(t, cfg.Paths.ProcRoot, 0.2)

	daemonCfg, _, _, err := config.LoadFor(config.RoleDaemon, configPath)
	if err != nil {
		t.Fatalf("load daemon config: %v", err)
	}
	sessionCfg, _, _, err := config.LoadFor(config.RoleSession, configPath)
	if err != nil {
		t.Fatalf("load session config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	d, err := daemon.New(config.NewStore(daemonCfg), daemon.Deps{
		Sampler: sensors.NewReader(daemonCfg.Paths.SysfsRoot, daemonCfg.Paths.ProcRoot, nil),
		Applier: applier.NewNoop(""),
	}, nil, "cli-test")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(d.Stop)

	daemonSrv, err := ipc.NewDaemonServer(ctx, daemonCfg.Paths.DaemonSocket, d, nil)
	if err != nil && strings.Contains(err.Error(), "operation not permitted") {
		t.Skip("unix sockets not permitted in sandbox")
	}
	if err != nil {
		t.Fatalf("NewDaemonServer: %v", err)
	}
	daemonSrv.Serve()
	t.Cleanup(daemonSrv.Close)

	socket := sessionCfg.Paths.DaemonSocket
	s, err := session.New(config.NewStore(sessionCfg), session.Deps{
		Sampler:  sensors.NewReader(sessionCfg.Paths.SysfsRoot, sessionCfg.Paths.ProcRoot, nil),
		Executor: quietExecutor{},
		Dial: func() (session.DaemonClient, error) {
			client, err := ipc.DialDaemon(socket, time.Second)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	}, nil, "cli-session")
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("session start: %v", err)
	}
	t.Cleanup(s.Stop)

	sessionSrv, err := ipc.NewSessionServer(ctx, sessionCfg.Paths.SessionSocket, s, nil)
	if err != nil {
		t.Fatalf("NewSessionServer: %v", err)
	}
	sessionSrv.Serve()
	t.Cleanup(sessionSrv.Close)

	waitFor(t, 3*time.Second, func() bool { return s.Metrics().DaemonReachable })
	return &cliTestEnv{cfg: cfg, configPath: configPath, daemon: d, session: s}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
