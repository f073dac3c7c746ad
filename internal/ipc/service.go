package ipc

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"dynpower/internal/logging"
	"dynpower/internal/power"
)

const (
	defaultWait = 10 * time.Second
	maxWait     = 30 * time.Second
)

// waitDuration clamps a client supplied long-poll window.
func waitDuration(millis int) time.Duration {
	if millis <= 0 {
		return defaultWait
	}
	wait := time.Duration(millis) * time.Millisecond
	if wait > maxWait {
		return maxWait
	}
	return wait
}

func parseOverride(mode string, boss bool) (power.ManualOverride, error) {
	parsed, err := power.ParseMode(mode)
	if err != nil {
		return power.ManualOverride{}, err
	}
	if parsed == power.ModeDynamic {
		return power.ManualOverride{Mode: power.ModeDynamic}, nil
	}
	return power.ManualOverride{Mode: parsed, Boss: boss}, nil
}

func refuse(err error) Ack {
	return Ack{OK: false, Message: err.Error()}
}

type daemonService struct {
	handler DaemonHandler
	logger  *slog.Logger
	ctx     context.Context
	peer    Peer
}

func (s *daemonService) log(method string) {
	if s.logger == nil {
		return
	}
	s.logger.Debug("ipc request",
		logging.String("method", method),
		logging.Int("peer_uid", s.peer.UID),
		logging.Int("peer_pid", s.peer.PID),
	)
}

func (s *daemonService) Ping(_ PingRequest, resp *PingResponse) error {
	s.log("Ping")
	resp.Message = "pong"
	resp.PID = os.Getpid()
	return nil
}

func (s *daemonService) GetDaemonState(_ GetDaemonStateRequest, resp *GetDaemonStateResponse) error {
	s.log("GetDaemonState")
	resp.DaemonState = s.handler.DaemonState()
	return nil
}

func (s *daemonService) SetUserProfile(req SetUserProfileRequest, resp *SetUserProfileResponse) error {
	s.log("SetUserProfile")
	override, err := parseOverride(req.Profile, req.IsBoss)
	if err != nil {
		*resp = refuse(err)
		return nil
	}
	if err := s.handler.SetUserProfile(s.ctx, override); err != nil {
		*resp = refuse(err)
		return nil
	}
	*resp = Ack{OK: true}
	return nil
}

func (s *daemonService) SetLoadThresholds(req SetLoadThresholdsRequest, resp *SetLoadThresholdsResponse) error {
	s.log("SetLoadThresholds")
	applied, err := s.handler.SetLoadThresholds(s.ctx, power.NewThresholds(req.Low, req.High))
	if err != nil {
		resp.Ack = refuse(err)
		return nil
	}
	resp.Ack = Ack{OK: true}
	resp.Low = applied.Low
	resp.High = applied.High
	return nil
}

func (s *daemonService) SetPollInterval(req SetPollIntervalRequest, resp *SetPollIntervalResponse) error {
	s.log("SetPollInterval")
	seconds := power.MaxPollSeconds
	if req.Seconds < power.MaxPollSeconds {
		seconds = power.ClampPollSeconds(int(req.Seconds))
	}
	applied, err := s.handler.SetPollInterval(s.ctx, seconds)
	if err != nil {
		resp.Ack = refuse(err)
		return nil
	}
	resp.Ack = Ack{OK: true}
	resp.Seconds = uint(applied)
	return nil
}

func (s *daemonService) SetProcessOverride(req SetProcessOverrideRequest, resp *SetProcessOverrideResponse) error {
	s.log("SetProcessOverride")
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		*resp = refuse(errors.New("session id is required"))
		return nil
	}
	uid := req.UID
	if s.peer.Known {
		// The kernel's view of the caller wins over what it claims.
		uid = s.peer.UID
	}
	if err := s.handler.SetProcessOverride(s.ctx, sessionID, uid, req.Matches); err != nil {
		*resp = refuse(err)
		return nil
	}
	*resp = Ack{OK: true}
	return nil
}

func (s *daemonService) WaitStateChange(req WaitStateChangeRequest, resp *WaitStateChangeResponse) error {
	ctx, cancel := context.WithTimeout(s.ctx, waitDuration(req.WaitMillis))
	defer cancel()
	state, changed := s.handler.WaitStateChange(ctx, req.SinceVersion)
	resp.Changed = changed
	resp.State = state
	return nil
}

type sessionService struct {
	handler SessionHandler
	logger  *slog.Logger
	ctx     context.Context
}

func (s *sessionService) log(method string) {
	if s.logger == nil {
		return
	}
	s.logger.Debug("ipc request", logging.String("method", method))
}

func (s *sessionService) Ping(_ PingRequest, resp *PingResponse) error {
	s.log("Ping")
	resp.Message = "pong"
	resp.PID = os.Getpid()
	return nil
}

func (s *sessionService) GetMetrics(_ GetMetricsRequest, resp *GetMetricsResponse) error {
	s.log("GetMetrics")
	resp.Metrics = s.handler.Metrics()
	return nil
}

func (s *sessionService) GetProcessMatches(_ GetProcessMatchesRequest, resp *GetProcessMatchesResponse) error {
	s.log("GetProcessMatches")
	matches := s.handler.ProcessMatches()
	if matches == nil {
		matches = []ProcessMatch{}
	}
	resp.Matches = matches
	return nil
}

func (s *sessionService) GetUserOverride(_ GetUserOverrideRequest, resp *GetUserOverrideResponse) error {
	s.log("GetUserOverride")
	override := s.handler.UserOverride()
	mode := override.Mode
	if mode == "" {
		mode = power.ModeDynamic
	}
	resp.Mode = string(mode)
	resp.Boss = override.Boss
	return nil
}

func (s *sessionService) SetUserOverride(req SetUserOverrideRequest, resp *SetUserOverrideResponse) error {
	s.log("SetUserOverride")
	override, err := parseOverride(req.Mode, req.Boss)
	if err != nil {
		*resp = refuse(err)
		return nil
	}
	if err := s.handler.SetUserOverride(s.ctx, override); err != nil {
		*resp = refuse(err)
		return nil
	}
	*resp = Ack{OK: true}
	return nil
}

func (s *sessionService) UpdateProcessMatches(req UpdateProcessMatchesRequest, resp *UpdateProcessMatchesResponse) error {
	s.log("UpdateProcessMatches")
	if err := s.handler.UpdateProcessMatches(s.ctx, req.Matches); err != nil {
		*resp = refuse(err)
		return nil
	}
	*resp = Ack{OK: true}
	return nil
}

func (s *sessionService) WaitPowerStateChanged(req WaitPowerStateChangedRequest, resp *WaitPowerStateChangedResponse) error {
	ctx, cancel := context.WithTimeout(s.ctx, waitDuration(req.WaitMillis))
	defer cancel()
	event, changed := s.handler.WaitPowerStateChanged(ctx, req.SinceSeq)
	resp.Changed = changed
	resp.Seq = event.Seq
	resp.PowerSource = event.PowerSource
	return nil
}
