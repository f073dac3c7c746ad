package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dynpower/internal/config"
	"dynpower/internal/deps"
	"dynpower/internal/ipc"
	"dynpower/internal/power"
	"dynpower/internal/statestore"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// ErrSessionNotRunning indicates the session socket is unavailable.
var ErrSessionNotRunning = errors.New("session not running")

// ConnectDaemon dials the daemon socket, mapping a missing or refused socket
// to ErrDaemonNotRunning.
func ConnectDaemon(cfg *config.Config) (*ipc.DaemonClient, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	client, err := ipc.DialDaemon(cfg.Paths.DaemonSocket, cfg.CallTimeout())
	if err != nil {
		if isDaemonUnavailable(err) {
			return nil, ErrDaemonNotRunning
		}
		return nil, err
	}
	return client, nil
}

// ConnectSession dials the caller's session socket, mapping a missing or
// refused socket to ErrSessionNotRunning.
func ConnectSession(cfg *config.Config) (*ipc.SessionClient, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	client, err := ipc.DialSession(cfg.Paths.SessionSocket, cfg.CallTimeout())
	if err != nil {
		if isDaemonUnavailable(err) {
			return nil, ErrSessionNotRunning
		}
		return nil, err
	}
	return client, nil
}

// StatusSnapshot merges what the daemon and session report. When the daemon
// is down the state comes from the last persisted record and Offline is set.
type StatusSnapshot struct {
	DaemonRunning bool                `json:"daemon_running"`
	DaemonPID     int                 `json:"daemon_pid,omitempty"`
	DaemonSocket  string              `json:"daemon_socket"`
	State         power.DaemonState   `json:"state"`
	Offline       bool                `json:"offline"`
	SavedAt       time.Time           `json:"saved_at,omitzero"`
	SavedReason   string              `json:"saved_reason,omitempty"`
	StateDBPath   string              `json:"state_db"`
	Session       *ipc.SessionMetrics `json:"session,omitempty"`
	SessionSocket string              `json:"session_socket"`
	Dependencies  []deps.Status       `json:"dependencies"`
	Warnings      []string            `json:"warnings,omitempty"`
}

// BuildStatusSnapshot collects daemon and session status with an offline
// fallback to the state database.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &StatusSnapshot{
		DaemonSocket:  cfg.Paths.DaemonSocket,
		SessionSocket: cfg.Paths.SessionSocket,
		StateDBPath:   cfg.StateDBPath(),
		Dependencies:  deps.Check(deps.Requirements(cfg)),
	}

	client, err := ConnectDaemon(cfg)
	if err == nil {
		defer client.Close()
		if ping, pingErr := client.Ping(); pingErr == nil && ping != nil {
			snapshot.DaemonPID = ping.PID
		}
		state, stateErr := client.GetDaemonState()
		if stateErr == nil {
			snapshot.DaemonRunning = true
			snapshot.State = state
		} else {
			snapshot.Warnings = append(snapshot.Warnings, fmt.Sprintf("daemon state query failed: %v", stateErr))
		}
	} else if !errors.Is(err, ErrDaemonNotRunning) {
		snapshot.Warnings = append(snapshot.Warnings, fmt.Sprintf("daemon unreachable: %v", err))
	}

	if !snapshot.DaemonRunning {
		loadOffline(ctx, snapshot)
		if snapshot.DaemonPID == 0 {
			snapshot.DaemonPID = ReadPID(cfg.WithRole(config.RoleDaemon).PIDPath())
		}
	}

	if session, sessionErr := ConnectSession(cfg); sessionErr == nil {
		metrics, metricsErr := session.GetMetrics()
		_ = session.Close()
		if metricsErr == nil {
			snapshot.Session = &metrics
		} else {
			snapshot.Warnings = append(snapshot.Warnings, fmt.Sprintf("session metrics query failed: %v", metricsErr))
		}
	}
	return snapshot, nil
}

func loadOffline(ctx context.Context, snapshot *StatusSnapshot) {
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	store, err := statestore.OpenReadOnly(snapshot.StateDBPath)
	if err != nil {
		return
	}
	defer store.Close()
	rec, err := store.Load(queryCtx)
	if err != nil {
		if !errors.Is(err, statestore.ErrNoState) {
			snapshot.Warnings = append(snapshot.Warnings, fmt.Sprintf("read saved state: %v", err))
		}
		return
	}
	snapshot.Offline = true
	snapshot.State = rec.State
	snapshot.SavedAt = rec.Saved
	snapshot.SavedReason = rec.Reason
}

// ReadPID returns the pid recorded at path, or 0 when absent or malformed.
func ReadPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// WaitForState long-polls the daemon until the published version moves past
// since or wait elapses. The returned bool reports whether it changed.
func WaitForState(client *ipc.DaemonClient, since uint64, wait time.Duration) (power.DaemonState, bool, error) {
	if client == nil {
		return power.DaemonState{}, false, ErrDaemonNotRunning
	}
	resp, err := client.WaitStateChange(since, wait)
	if err != nil {
		return power.DaemonState{}, false, err
	}
	return resp.State, resp.Changed, nil
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
