package session_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"dynpower/internal/applier"
	"dynpower/internal/arbiter"
	"dynpower/internal/config"
	"dynpower/internal/daemon"
	"dynpower/internal/ipc"
	"dynpower/internal/power"
	"dynpower/internal/sensors"
	"dynpower/internal/session"
	"dynpower/internal/testsupport"
)

type fakeSampler struct {
	mu     sync.Mutex
	sample sensors.Sample
}

func (f *fakeSampler) Sample(context.Context) sensors.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sample
}

func (f *fakeSampler) set(source power.PowerSource, load float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sample = sensors.Sample{Source: source, Load1m: load, SampledAt: time.Now()}
}

type fakeScanner struct {
	mu    sync.Mutex
	names []string
}

func (f *fakeScanner) Running(context.Context) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	running := make(map[string]struct{}, len(f.names))
	for _, name := range f.names {
		running[name] = struct{}{}
	}
	return running, nil
}

type recordingExecutor struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingExecutor) Run(_ context.Context, binary string, args []string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, binary+" "+strings.Join(args, " "))
	return nil, nil
}

func (r *recordingExecutor) history() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// inProcessClient talks to a daemon in the same process.
type inProcessClient struct {
	d      *daemon.Daemon
	broken *bool
	mu     *sync.Mutex
	closed bool
}

var errBusDown = errors.New("bus down")

func (c *inProcessClient) down() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.broken
}

func (c *inProcessClient) GetDaemonState() (power.DaemonState, error) {
	if c.down() {
		return power.DaemonState{}, errBusDown
	}
	return c.d.DaemonState(), nil
}

func (c *inProcessClient) SetUserProfile(mode power.Mode, boss bool) (ipc.Ack, error) {
	if c.down() {
		return ipc.Ack{}, errBusDown
	}
	if err := c.d.SetUserProfile(context.Background(), power.ManualOverride{Mode: mode, Boss: boss}); err != nil {
		return ipc.Ack{Message: err.Error()}, nil
	}
	return ipc.Ack{OK: true}, nil
}

func (c *inProcessClient) SetLoadThresholds(low, high float64) (*ipc.SetLoadThresholdsResponse, error) {
	if c.down() {
		return nil, errBusDown
	}
	applied, err := c.d.SetLoadThresholds(context.Background(), power.NewThresholds(low, high))
	if err != nil {
		return nil, err
	}
	return &ipc.SetLoadThresholdsResponse{Ack: ipc.Ack{OK: true}, Low: applied.Low, High: applied.High}, nil
}

func (c *inProcessClient) SetProcessOverride(sessionID string, uid int, matches []ipc.ProcessMatch) (ipc.Ack, error) {
	if c.down() {
		return ipc.Ack{}, errBusDown
	}
	if err := c.d.SetProcessOverride(context.Background(), sessionID, uid, matches); err != nil {
		return ipc.Ack{Message: err.Error()}, nil
	}
	return ipc.Ack{OK: true}, nil
}

func (c *inProcessClient) Close() error {
	c.closed = true
	return nil
}

func (c *inProcessClient) Closed() bool {
	return c.closed
}

type harness struct {
	daemon   *daemon.Daemon
	session  *session.Session
	sampler  *fakeSampler
	scanner  *fakeScanner
	executor *recordingExecutor

	mu     sync.Mutex
	broken bool
	dials  int
}

func (h *harness) setBroken(broken bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broken = broken
}

func (h *harness) dialCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dials
}

func noSleep() arbiter.Option {
	return arbiter.WithSleep(func(context.Context, time.Duration) {})
}

func newHarness(t *testing.T, sessionOpts ...testsupport.ConfigOption) (*harness, *config.Config) {
	t.Helper()
	h := &harness{
		sampler:  &fakeSampler{},
		scanner:  &fakeScanner{},
		executor: &recordingExecutor{},
	}
	h.sampler.set(power.SourceAC, 0.5)

	h.daemon = newTestDaemon(t, h.sampler)

	sessionCfg := testsupport.NewConfig(t, config.RoleSession, sessionOpts...)
	return h, sessionCfg
}

func newTestDaemon(t *testing.T, sampler *fakeSampler) *daemon.Daemon {
	t.Helper()
	daemonCfg := testsupport.NewConfig(t, config.RoleDaemon)
	d, err := daemon.New(config.NewStore(daemonCfg), daemon.Deps{
		Sampler:       sampler,
		Applier:       applier.NewNoop(""),
		EngineOptions: []arbiter.Option{noSleep()},
	}, nil, "daemon-test")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func (h *harness) currentDaemon() *daemon.Daemon {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.daemon
}

func (h *harness) start(t *testing.T, cfg *config.Config) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d := h.currentDaemon()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}
	t.Cleanup(d.Stop)

	dial := func() (session.DaemonClient, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.dials++
		if h.broken {
			return nil, errBusDown
		}
		return &inProcessClient{d: h.daemon, broken: &h.broken, mu: &h.mu}, nil
	}
	s, err := session.New(config.NewStore(cfg), session.Deps{
		Sampler:       h.sampler,
		Scanner:       h.scanner,
		Dial:          dial,
		Executor:      h.executor,
		EngineOptions: []arbiter.Option{noSleep()},
	}, nil, "session-test")
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	h.session = s
	if err := s.Start(ctx); err != nil {
		t.Fatalf("session Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return ctx
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionConfirmsAgainstDaemon(t *testing.T) {
	h, cfg := newHarness(t)
	h.start(t, cfg)

	waitFor(t, "confirmed cycle", func() bool {
		m := h.session.Metrics()
		return m.ApplyState == power.ApplyConfirmed && m.DaemonReachable
	})
	m := h.session.Metrics()
	if m.ResolvedProfile != power.ProfilePowersave || m.DaemonProfile != power.ProfilePowersave {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if m.PowerSource != power.SourceAC || m.DecisionSource != power.SourceDynamic {
		t.Fatalf("unexpected source fields %+v", m)
	}
	if health := h.session.Health(); health.Status != "ok" {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestSessionForwardsProcessMatches(t *testing.T) {
	h, cfg := newHarness(t, testsupport.WithRule("ffmpeg", 10, "performance"), testsupport.WithRule("steam", 1, "balanced"))
	h.scanner.names = []string{"ffmpeg", "steam", "bash"}
	h.start(t, cfg)

	waitFor(t, "process override applied", func() bool {
		state := h.daemon.DaemonState()
		return state.ActiveProfile == power.ProfilePerformance && state.DecisionSource == power.SourceProcess
	})
	waitFor(t, "session confirmed", func() bool {
		return h.session.Metrics().ApplyState == power.ApplyConfirmed
	})
	matches := h.session.ProcessMatches()
	if len(matches) != 2 || matches[0].ProcessName != "ffmpeg" || !matches[0].Active || matches[1].Active {
		t.Fatalf("unexpected matches %+v", matches)
	}
}

func TestSetUserOverrideForwardsToDaemon(t *testing.T) {
	h, cfg := newHarness(t)
	ctx := h.start(t, cfg)

	if err := h.session.SetUserOverride(ctx, power.ManualOverride{Mode: power.ModePerformance}); err != nil {
		t.Fatalf("SetUserOverride: %v", err)
	}
	if got := h.daemon.DaemonState().ActiveProfile; got != power.ProfilePerformance {
		t.Fatalf("expected daemon performance after reply, got %s", got)
	}
	if got := h.session.UserOverride(); got.Mode != power.ModePerformance {
		t.Fatalf("unexpected override %+v", got)
	}
	if m := h.session.Metrics(); m.DecisionSource != power.SourceManual || m.ApplyState != power.ApplyConfirmed {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestForwarderRetriesAfterFailure(t *testing.T) {
	h, cfg := newHarness(t)
	h.setBroken(true)
	ctx := h.start(t, cfg)

	if err := h.session.SetUserOverride(ctx, power.ManualOverride{Mode: power.ModeBalanced}); err != nil {
		t.Fatalf("SetUserOverride: %v", err)
	}
	m := h.session.Metrics()
	if m.DaemonReachable {
		t.Fatal("expected daemon unreachable while bus is down")
	}
	if m.ApplyState != power.ApplyFailed {
		t.Fatalf("expected failed apply while unreachable, got %s", m.ApplyState)
	}
	if health := h.session.Health(); health.Status != "daemon_unreachable" {
		t.Fatalf("unexpected health %+v", health)
	}
	dialsWhileDown := h.dialCount()

	h.setBroken(false)
	waitFor(t, "manual override delivered", func() bool {
		return h.daemon.DaemonState().ActiveProfile == power.ProfileBalanced
	})
	if h.dialCount() <= dialsWhileDown {
		t.Fatal("expected the forwarder to redial")
	}
	waitFor(t, "session reachable", func() bool {
		return h.session.Metrics().DaemonReachable
	})
}

func TestPowerStateChangedDrivesOverdrive(t *testing.T) {
	h, cfg := newHarness(t, testsupport.WithPanelOverdrive("asusctl", "armoury", "panel_overdrive"))
	ctx := h.start(t, cfg)

	waitFor(t, "initial power event", func() bool {
		calls := h.executor.history()
		return len(calls) == 1 && calls[0] == "asusctl armoury panel_overdrive 1"
	})

	h.sampler.set(power.SourceBattery, 0.5)
	if err := h.session.SetUserOverride(ctx, power.ManualOverride{Mode: power.ModeDynamic}); err != nil {
		t.Fatalf("SetUserOverride: %v", err)
	}
	calls := h.executor.history()
	if len(calls) != 2 || calls[1] != "asusctl armoury panel_overdrive 0" {
		t.Fatalf("unexpected overdrive calls %v", calls)
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	event, changed := h.session.WaitPowerStateChanged(waitCtx, 1)
	if !changed || event.Seq != 2 || event.PowerSource != power.SourceBattery {
		t.Fatalf("unexpected event %+v changed=%v", event, changed)
	}

	// Another cycle on the same source emits nothing.
	if err := h.session.SetUserOverride(ctx, power.ManualOverride{Mode: power.ModeDynamic}); err != nil {
		t.Fatalf("SetUserOverride: %v", err)
	}
	if got := len(h.executor.history()); got != 2 {
		t.Fatalf("expected no overdrive call without a transition, got %d", got)
	}
}

func TestPowerHooksRunPerSource(t *testing.T) {
	h, cfg := newHarness(t,
		testsupport.WithPowerHook("screen_refresh", []string{"kscreen-doctor", "output.1.mode.2"}, []string{"kscreen-doctor", "output.1.mode.1"}),
		testsupport.WithPowerHook("autohide", nil, []string{"panelctl", "autohide", "on"}),
	)
	ctx := h.start(t, cfg)

	waitFor(t, "AC hook", func() bool {
		calls := h.executor.history()
		return len(calls) == 1 && calls[0] == "kscreen-doctor output.1.mode.2"
	})

	h.sampler.set(power.SourceBattery, 0.5)
	if err := h.session.SetUserOverride(ctx, power.ManualOverride{Mode: power.ModeDynamic}); err != nil {
		t.Fatalf("SetUserOverride: %v", err)
	}
	calls := h.executor.history()
	want := []string{"kscreen-doctor output.1.mode.2", "panelctl autohide on", "kscreen-doctor output.1.mode.1"}
	if !slices.Equal(calls, want) {
		t.Fatalf("expected hooks in name order %v, got %v", want, calls)
	}
}

func TestUpdateProcessMatchesWithoutScanning(t *testing.T) {
	h, cfg := newHarness(t, testsupport.WithRule("blender", 5, "performance"))
	cfg.Session.ScanProcesses = false
	ctx := h.start(t, cfg)

	pushed := []ipc.ProcessMatch{{ProcessName: "blender"}, {ProcessName: "unconfigured"}}
	if err := h.session.UpdateProcessMatches(ctx, pushed); err != nil {
		t.Fatalf("UpdateProcessMatches: %v", err)
	}
	matches := h.session.ProcessMatches()
	if len(matches) != 1 || matches[0].ProcessName != "blender" || matches[0].Mode != power.ModePerformance {
		t.Fatalf("expected pushed names re-resolved against rules, got %+v", matches)
	}
	if got := h.daemon.DaemonState().ActiveProfile; got != power.ProfilePerformance {
		t.Fatalf("expected daemon performance, got %s", got)
	}
}

func TestSessionResendsInputsAfterDaemonRestart(t *testing.T) {
	h, cfg := newHarness(t)
	ctx := h.start(t, cfg)

	performance := power.ManualOverride{Mode: power.ModePerformance}
	if err := h.session.SetUserOverride(ctx, performance); err != nil {
		t.Fatalf("SetUserOverride: %v", err)
	}
	if got := h.daemon.DaemonState().ActiveProfile; got != power.ProfilePerformance {
		t.Fatalf("expected daemon performance, got %s", got)
	}

	// The daemon goes away and a fresh instance without the override takes
	// its place.
	h.setBroken(true)
	if err := h.session.SetUserOverride(ctx, performance); err != nil {
		t.Fatalf("SetUserOverride while down: %v", err)
	}
	if h.session.Metrics().DaemonReachable {
		t.Fatal("expected daemon unreachable while bus is down")
	}
	restarted := newTestDaemon(t, h.sampler)
	if err := restarted.Start(ctx); err != nil {
		t.Fatalf("restarted Start: %v", err)
	}
	t.Cleanup(restarted.Stop)
	if got := restarted.DaemonState().ActiveProfile; got == power.ProfilePerformance {
		t.Fatalf("fresh daemon should not start in performance")
	}
	h.mu.Lock()
	h.daemon = restarted
	h.broken = false
	h.mu.Unlock()

	waitFor(t, "override resent to the restarted daemon", func() bool {
		state := restarted.DaemonState()
		return state.ActiveProfile == power.ProfilePerformance && state.DecisionSource == power.SourceManual
	})
	waitFor(t, "session confirmed against the restarted daemon", func() bool {
		m := h.session.Metrics()
		return m.DaemonReachable && m.ApplyState == power.ApplyConfirmed && m.DaemonProfile == power.ProfilePerformance
	})
}
