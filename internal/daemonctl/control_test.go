package daemonctl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dynpower/internal/config"
	"dynpower/internal/daemonctl"
	"dynpower/internal/ipc"
	"dynpower/internal/power"
	"dynpower/internal/statestore"
	"dynpower/internal/testsupport"
)

type staticDaemon struct {
	state power.DaemonState
}

func (s *staticDaemon) DaemonState() power.DaemonState { return s.state }

func (s *staticDaemon) SetUserProfile(context.Context, power.ManualOverride) error { return nil }

func (s *staticDaemon) SetLoadThresholds(_ context.Context, t power.Thresholds) (power.Thresholds, error) {
	return t, nil
}

func (s *staticDaemon) SetPollInterval(_ context.Context, seconds int) (int, error) {
	return seconds, nil
}

func (s *staticDaemon) SetProcessOverride(context.Context, string, int, []ipc.ProcessMatch) error {
	return nil
}

func (s *staticDaemon) WaitStateChange(_ context.Context, since uint64) (power.DaemonState, bool) {
	return s.state, s.state.Version > since
}

func serveDaemon(t *testing.T, cfg *config.Config, h ipc.DaemonHandler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv, err := ipc.NewDaemonServer(ctx, cfg.Paths.DaemonSocket, h, nil)
	if err != nil && strings.Contains(err.Error(), "operation not permitted") {
		t.Skip("unix sockets not permitted in sandbox")
	}
	if err != nil {
		t.Fatalf("NewDaemonServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
}

func TestConnectDaemonNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t, config.RoleSession)
	if _, err := daemonctl.ConnectDaemon(cfg); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	if _, err := daemonctl.ConnectSession(cfg); !errors.Is(err, daemonctl.ErrSessionNotRunning) {
		t.Fatalf("expected ErrSessionNotRunning, got %v", err)
	}
}

func TestBuildStatusSnapshotFromRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, config.RoleSession)
	serveDaemon(t, cfg, &staticDaemon{state: power.DaemonState{
		ActiveProfile: power.ProfilePerformance,
		ThresholdLow:  1,
		ThresholdHigh: 2,
		ApplyState:    power.ApplyConfirmed,
		Version:       7,
	}})

	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if !snapshot.DaemonRunning || snapshot.Offline {
		t.Fatalf("expected live daemon snapshot, got %+v", snapshot)
	}
	if snapshot.State.ActiveProfile != power.ProfilePerformance || snapshot.State.Version != 7 {
		t.Fatalf("unexpected state %+v", snapshot.State)
	}
	if snapshot.DaemonPID != os.Getpid() {
		t.Fatalf("expected pid %d from ping, got %d", os.Getpid(), snapshot.DaemonPID)
	}
	if snapshot.Session != nil {
		t.Fatalf("expected no session metrics without a session, got %+v", snapshot.Session)
	}
}

func TestBuildStatusSnapshotFallsBackToSavedState(t *testing.T) {
	cfg := testsupport.NewConfig(t, config.RoleSession)
	store := testsupport.MustOpenStateStore(t, cfg)
	saved := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := store.Save(context.Background(), statestore.Record{
		State: power.DaemonState{
			ActiveProfile: power.ProfilePowersave,
			ThresholdLow:  1,
			ThresholdHigh: 2,
			PowerSource:   power.SourceBattery,
			Version:       4,
		},
		Reason: "battery",
		RunID:  "run-1",
		Saved:  saved,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	store.Close()

	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.DaemonRunning {
		t.Fatal("expected daemon reported as down")
	}
	if !snapshot.Offline {
		t.Fatalf("expected offline state, got %+v", snapshot)
	}
	if snapshot.State.ActiveProfile != power.ProfilePowersave || snapshot.SavedReason != "battery" {
		t.Fatalf("unexpected saved state %+v", snapshot)
	}
	if !snapshot.SavedAt.Equal(saved) {
		t.Fatalf("expected saved time %v, got %v", saved, snapshot.SavedAt)
	}
}

func TestBuildStatusSnapshotWithoutAnyState(t *testing.T) {
	cfg := testsupport.NewConfig(t, config.RoleSession)
	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.DaemonRunning || snapshot.Offline {
		t.Fatalf("expected empty snapshot, got %+v", snapshot)
	}
	if len(snapshot.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", snapshot.Warnings)
	}
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.pid")
	bad := filepath.Join(dir, "bad.pid")
	testsupport.WriteFile(t, good, "4242\n")
	testsupport.WriteFile(t, bad, "nope")

	if pid := daemonctl.ReadPID(good); pid != 4242 {
		t.Fatalf("expected 4242, got %d", pid)
	}
	if pid := daemonctl.ReadPID(bad); pid != 0 {
		t.Fatalf("expected 0 for malformed pid, got %d", pid)
	}
	if pid := daemonctl.ReadPID(filepath.Join(dir, "missing.pid")); pid != 0 {
		t.Fatalf("expected 0 for missing pid, got %d", pid)
	}
}

func TestWaitForState(t *testing.T) {
	cfg := testsupport.NewConfig(t, config.RoleSession)
	serveDaemon(t, cfg, &staticDaemon{state: power.DaemonState{Version: 5, ActiveProfile: power.ProfileBalanced}})

	client, err := daemonctl.ConnectDaemon(cfg)
	if err != nil {
		t.Fatalf("ConnectDaemon: %v", err)
	}
	defer client.Close()

	state, changed, err := daemonctl.WaitForState(client, 2, time.Second)
	if err != nil {
		t.Fatalf("WaitForState: %v", err)
	}
	if !changed || state.Version != 5 {
		t.Fatalf("expected change to version 5, got changed=%v state=%+v", changed, state)
	}
}
