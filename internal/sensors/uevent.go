package sensors

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"dynpower/internal/logging"
)

// UeventMonitor listens for power_supply udev events and signals Wake so the
// cycle loop can resample without waiting for the next tick.
type UeventMonitor struct {
	logger *slog.Logger
	wake   chan struct{}

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewUeventMonitor creates an unstarted monitor.
func NewUeventMonitor(logger *slog.Logger) *UeventMonitor {
	return &UeventMonitor{
		logger: logging.NewComponentLogger(logger, "uevent-monitor"),
		wake:   make(chan struct{}, 1),
	}
}

// Wake fires after a power_supply event. Bursts coalesce into one signal.
func (m *UeventMonitor) Wake() <-chan struct{} {
	if m == nil {
		return nil
	}
	return m.wake
}

// Start connects to the netlink socket and begins monitoring. Connection
// failures are logged and reported as success; the loop keeps ticking.
func (m *UeventMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; power source changes are picked up on the next tick",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the process may open NETLINK_KOBJECT_UEVENT sockets"),
			logging.String(logging.FieldImpact, "plug and unplug reactions wait for the poll interval"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("uevent monitor started",
		logging.String(logging.FieldEventType, "uevent_monitor_started"),
	)
	return nil
}

// Stop shuts down the monitor. Safe to call on an unstarted monitor.
func (m *UeventMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("uevent monitor stopped",
		logging.String(logging.FieldEventType, "uevent_monitor_stopped"),
	)
}

// Running reports whether the monitor is connected.
func (m *UeventMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *UeventMonitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("uevent monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "uevent_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "power source changes may wait for the next tick"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=power_supply with ACTION=change|add|remove.
func (m *UeventMonitor) buildMatcher() netlink.Matcher {
	action := "change|add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "power_supply",
		},
	})
	return rules
}

func (m *UeventMonitor) handleEvent(uevent netlink.UEvent) {
	m.logger.Debug("power supply event",
		logging.String("action", string(uevent.Action)),
		logging.String("supply", uevent.Env["POWER_SUPPLY_NAME"]),
		logging.String("online", uevent.Env["POWER_SUPPLY_ONLINE"]),
	)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
