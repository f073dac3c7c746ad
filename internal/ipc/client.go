package ipc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"

	"dynpower/internal/power"
)

// DefaultCallTimeout bounds a call when the caller supplies none.
const DefaultCallTimeout = time.Second

// ErrCallTimeout is returned when a call exceeds its timeout. The client is
// closed and must be redialed.
var ErrCallTimeout = errors.New("ipc call timed out")

// ErrClientClosed is returned by calls on a closed client.
var ErrClientClosed = errors.New("ipc client closed")

type client struct {
	service string
	timeout time.Duration

	mu     sync.Mutex
	rpc    *rpc.Client
	closed bool
}

func dial(path, service string, timeout time.Duration) (*client, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return &client{
		service: service,
		timeout: timeout,
		rpc:     jsonrpc.NewClient(conn),
	}, nil
}

func (c *client) call(method string, req, resp any, extra time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	rpcClient := c.rpc
	c.mu.Unlock()

	call := rpcClient.Go(c.service+"."+method, req, resp, make(chan *rpc.Call, 1))
	timer := time.NewTimer(c.timeout + extra)
	defer timer.Stop()
	select {
	case done := <-call.Done:
		if done.Error != nil {
			if errors.Is(done.Error, rpc.ErrShutdown) || errors.Is(done.Error, io.ErrUnexpectedEOF) {
				_ = c.Close()
			}
			return fmt.Errorf("%s: %w", method, done.Error)
		}
		return nil
	case <-timer.C:
		_ = c.Close()
		return fmt.Errorf("%s: %w", method, ErrCallTimeout)
	}
}

// Close closes the underlying connection.
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rpc.Close()
}

// Closed reports whether the client can no longer be used.
func (c *client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// DaemonClient calls the Dynpower service.
type DaemonClient struct {
	*client
}

// DialDaemon connects to the daemon socket.
func DialDaemon(path string, timeout time.Duration) (*DaemonClient, error) {
	c, err := dial(path, DaemonServiceName, timeout)
	if err != nil {
		return nil, err
	}
	return &DaemonClient{client: c}, nil
}

// Ping checks the daemon is alive.
func (c *DaemonClient) Ping() (*PingResponse, error) {
	var resp PingResponse
	if err := c.call("Ping", PingRequest{}, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDaemonState fetches the authoritative state.
func (c *DaemonClient) GetDaemonState() (power.DaemonState, error) {
	var resp GetDaemonStateResponse
	if err := c.call("GetDaemonState", GetDaemonStateRequest{}, &resp, 0); err != nil {
		return power.DaemonState{}, err
	}
	return resp.DaemonState, nil
}

// SetUserProfile sets the manual override. Dynamic clears it.
func (c *DaemonClient) SetUserProfile(mode power.Mode, boss bool) (Ack, error) {
	var resp SetUserProfileResponse
	err := c.call("SetUserProfile", SetUserProfileRequest{Profile: string(mode), IsBoss: boss}, &resp, 0)
	return resp, err
}

// SetLoadThresholds replaces the base thresholds.
func (c *DaemonClient) SetLoadThresholds(low, high float64) (*SetLoadThresholdsResponse, error) {
	var resp SetLoadThresholdsResponse
	if err := c.call("SetLoadThresholds", SetLoadThresholdsRequest{Low: low, High: high}, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetPollInterval changes the daemon's cycle interval.
func (c *DaemonClient) SetPollInterval(seconds uint) (*SetPollIntervalResponse, error) {
	var resp SetPollIntervalResponse
	if err := c.call("SetPollInterval", SetPollIntervalRequest{Seconds: seconds}, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetProcessOverride forwards a session's matches.
func (c *DaemonClient) SetProcessOverride(sessionID string, uid int, matches []ProcessMatch) (Ack, error) {
	var resp SetProcessOverrideResponse
	req := SetProcessOverrideRequest{SessionID: sessionID, UID: uid, Matches: matches}
	err := c.call("SetProcessOverride", req, &resp, 0)
	return resp, err
}

// WaitStateChange blocks up to wait for a state version above since.
func (c *DaemonClient) WaitStateChange(since uint64, wait time.Duration) (*WaitStateChangeResponse, error) {
	var resp WaitStateChangeResponse
	req := WaitStateChangeRequest{SinceVersion: since, WaitMillis: int(wait / time.Millisecond)}
	if err := c.call("WaitStateChange", req, &resp, waitDuration(req.WaitMillis)); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionClient calls the DynpowerSession service.
type SessionClient struct {
	*client
}

// DialSession connects to a session socket.
func DialSession(path string, timeout time.Duration) (*SessionClient, error) {
	c, err := dial(path, SessionServiceName, timeout)
	if err != nil {
		return nil, err
	}
	return &SessionClient{client: c}, nil
}

// Ping checks the session is alive.
func (c *SessionClient) Ping() (*PingResponse, error) {
	var resp PingResponse
	if err := c.call("Ping", PingRequest{}, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetMetrics fetches the session's last cycle view.
func (c *SessionClient) GetMetrics() (SessionMetrics, error) {
	var resp GetMetricsResponse
	if err := c.call("GetMetrics", GetMetricsRequest{}, &resp, 0); err != nil {
		return SessionMetrics{}, err
	}
	return resp.Metrics, nil
}

// GetProcessMatches lists matched rules, winner first.
func (c *SessionClient) GetProcessMatches() ([]ProcessMatch, error) {
	var resp GetProcessMatchesResponse
	if err := c.call("GetProcessMatches", GetProcessMatchesRequest{}, &resp, 0); err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

// GetUserOverride fetches the manual override.
func (c *SessionClient) GetUserOverride() (*GetUserOverrideResponse, error) {
	var resp GetUserOverrideResponse
	if err := c.call("GetUserOverride", GetUserOverrideRequest{}, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetUserOverride replaces the manual override.
func (c *SessionClient) SetUserOverride(mode string, boss bool) (Ack, error) {
	var resp SetUserOverrideResponse
	err := c.call("SetUserOverride", SetUserOverrideRequest{Mode: mode, Boss: boss}, &resp, 0)
	return resp, err
}

// UpdateProcessMatches pushes externally scanned matches.
func (c *SessionClient) UpdateProcessMatches(matches []ProcessMatch) (Ack, error) {
	var resp UpdateProcessMatchesResponse
	err := c.call("UpdateProcessMatches", UpdateProcessMatchesRequest{Matches: matches}, &resp, 0)
	return resp, err
}

// WaitPowerStateChanged blocks up to wait for a transition after since.
func (c *SessionClient) WaitPowerStateChanged(since uint64, wait time.Duration) (*WaitPowerStateChangedResponse, error) {
	var resp WaitPowerStateChangedResponse
	req := WaitPowerStateChangedRequest{SinceSeq: since, WaitMillis: int(wait / time.Millisecond)}
	if err := c.call("WaitPowerStateChanged", req, &resp, waitDuration(req.WaitMillis)); err != nil {
		return nil, err
	}
	return &resp, nil
}
