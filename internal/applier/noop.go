package applier

import (
	"context"
	"fmt"
	"sync"

	"dynpower/internal/power"
)

// Noop records the requested profile in memory.
type Noop struct {
	mu      sync.Mutex
	current power.Profile
	applied int
}

// NewNoop creates a noop backend reporting initial as active.
func NewNoop(initial power.Profile) *Noop {
	return &Noop{current: initial}
}

// Name identifies the backend.
func (n *Noop) Name() string { return "noop" }

// Apply stores profile.
func (n *Noop) Apply(ctx context.Context, profile power.Profile) error {
	if !profile.Valid() {
		return fmt.Errorf("%w: %q", power.ErrUnknownProfile, profile)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current != profile {
		n.current = profile
		n.applied++
	}
	return nil
}

// Active returns the stored profile.
func (n *Noop) Active(ctx context.Context) (power.Profile, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == "" {
		return "", fmt.Errorf("%w: none applied", ErrNotConfirmed)
	}
	return n.current, nil
}

// Changes counts applies that changed the stored profile.
func (n *Noop) Changes() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.applied
}
