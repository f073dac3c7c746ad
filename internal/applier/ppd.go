package applier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dynpower/internal/power"
)

// PowerProfilesCtl drives power-profiles-daemon through its CLI.
type PowerProfilesCtl struct {
	binary  string
	timeout time.Duration
	exec    Executor
}

// NewPowerProfilesCtl creates a powerprofilesctl backend. Each command is
// bounded by timeout when positive.
func NewPowerProfilesCtl(binary string, timeout time.Duration, opts ...Option) *PowerProfilesCtl {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "powerprofilesctl"
	}
	o := buildOptions(opts)
	return &PowerProfilesCtl{binary: binary, timeout: timeout, exec: o.exec}
}

// Name identifies the backend.
func (p *PowerProfilesCtl) Name() string { return "powerprofilesctl" }

// Active returns the profile reported by `powerprofilesctl get`.
func (p *PowerProfilesCtl) Active(ctx context.Context) (power.Profile, error) {
	out, err := p.run(ctx, "get")
	if err != nil {
		return "", err
	}
	profile, err := power.ParseProfile(strings.TrimSpace(string(out)))
	if err != nil {
		return "", fmt.Errorf("powerprofilesctl get: %w", err)
	}
	return profile, nil
}

// Apply switches to profile, skipping the set when it is already active.
func (p *PowerProfilesCtl) Apply(ctx context.Context, profile power.Profile) error {
	if !profile.Valid() {
		return fmt.Errorf("%w: %q", power.ErrUnknownProfile, profile)
	}
	if current, err := p.Active(ctx); err == nil && current == profile {
		return nil
	}
	if _, err := p.run(ctx, "set", profile.PPDName()); err != nil {
		return fmt.Errorf("set profile %s: %w", profile, err)
	}
	return nil
}

func (p *PowerProfilesCtl) run(ctx context.Context, args ...string) ([]byte, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.exec.Run(ctx, p.binary, args)
}
