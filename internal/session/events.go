package session

import (
	"context"
	"sync"
	"time"

	"dynpower/internal/ipc"
	"dynpower/internal/power"
)

// powerEvents sequences power source transitions for long-polling clients.
type powerEvents struct {
	mu      sync.Mutex
	last    ipc.PowerStateEvent
	changed chan struct{}
}

func newPowerEvents() *powerEvents {
	return &powerEvents{changed: make(chan struct{})}
}

// observe records source and reports whether it is a transition.
func (e *powerEvents) observe(source power.PowerSource, at time.Time) (ipc.PowerStateEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last.Seq > 0 && e.last.PowerSource == source {
		return e.last, false
	}
	e.last = ipc.PowerStateEvent{Seq: e.last.Seq + 1, PowerSource: source, At: at}
	close(e.changed)
	e.changed = make(chan struct{})
	return e.last, true
}

func (e *powerEvents) latest() ipc.PowerStateEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// wait blocks until an event after since exists or ctx ends.
func (e *powerEvents) wait(ctx context.Context, since uint64) (ipc.PowerStateEvent, bool) {
	for {
		e.mu.Lock()
		last := e.last
		changed := e.changed
		e.mu.Unlock()

		if last.Seq > since {
			return last, true
		}
		select {
		case <-ctx.Done():
			return e.latest(), false
		case <-changed:
		}
	}
}
