package state

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dynpower/internal/power"
)

// Publisher holds the latest DaemonState and fans out change notifications.
type Publisher struct {
	current atomic.Pointer[power.DaemonState]

	mu      sync.Mutex
	nextID  int
	subs    map[int]chan power.DaemonState
	changed chan struct{}
}

// NewPublisher creates a publisher seeded with initial.
func NewPublisher(initial power.DaemonState) *Publisher {
	p := &Publisher{
		subs:    make(map[int]chan power.DaemonState),
		changed: make(chan struct{}),
	}
	if initial.ApplyState == "" {
		initial.ApplyState = power.ApplyIdle
	}
	p.current.Store(&initial)
	return p
}

// Snapshot returns the last committed state.
func (p *Publisher) Snapshot() power.DaemonState {
	return *p.current.Load()
}

// Commit publishes next. When the profile or thresholds differ from the
// current snapshot the version is bumped, subscribers are notified, and true
// is returned. Otherwise next is stored with the current version.
func (p *Publisher) Commit(next power.DaemonState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.current.Load()
	changed := !prev.Target().Equal(next.Target())
	next.Version = prev.Version
	if changed {
		next.Version++
	}
	p.current.Store(&next)
	if !changed {
		return false
	}

	close(p.changed)
	p.changed = make(chan struct{})
	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
	return true
}

// Touch records a completed cycle without notifying anyone.
func (p *Publisher) Touch(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := *p.current.Load()
	next.LastCycle = at
	p.current.Store(&next)
}

// Subscribe returns a channel receiving each changed state. Call cancel to
// release it.
func (p *Publisher) Subscribe() (<-chan power.DaemonState, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	ch := make(chan power.DaemonState, 1)
	p.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// WaitChange blocks until the published version exceeds since or ctx ends.
// It returns the latest state and whether a change was observed.
func (p *Publisher) WaitChange(ctx context.Context, since uint64) (power.DaemonState, bool) {
	for {
		p.mu.Lock()
		current := *p.current.Load()
		wait := p.changed
		p.mu.Unlock()

		if current.Version > since {
			return current, true
		}
		select {
		case <-ctx.Done():
			return p.Snapshot(), false
		case <-wait:
		}
	}
}
