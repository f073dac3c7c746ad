package applier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"dynpower/internal/config"
	"dynpower/internal/power"
)

// ErrNotConfirmed reports that the read-back after an apply did not match
// the requested target.
var ErrNotConfirmed = errors.New("profile change not confirmed")

// Applier sets and reads the active profile.
type Applier interface {
	Apply(ctx context.Context, profile power.Profile) error
	Active(ctx context.Context) (power.Profile, error)
	Name() string
}

// TargetConfirmer is implemented by appliers whose read-back also reports
// the applied thresholds.
type TargetConfirmer interface {
	ActiveTarget(ctx context.Context) (power.Target, error)
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

// Option configures command-backed appliers.
type Option func(*options)

type options struct {
	exec Executor
}

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(o *options) {
		if exec != nil {
			o.exec = exec
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{exec: CommandExecutor{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New returns the backend selected by cfg.Applier.Backend.
func New(cfg *config.Config, opts ...Option) (Applier, error) {
	if cfg == nil {
		return nil, errors.New("applier requires configuration")
	}
	switch cfg.Applier.Backend {
	case config.BackendPowerProfilesCtl:
		return NewPowerProfilesCtl(cfg.Applier.PowerProfilesCtl, cfg.ApplyTimeout(), opts...), nil
	case config.BackendPlatformProfile:
		return NewPlatformProfile(cfg.Applier.PlatformProfilePath), nil
	case config.BackendNoop:
		return NewNoop(""), nil
	default:
		return nil, fmt.Errorf("unsupported applier backend %q", cfg.Applier.Backend)
	}
}

// CommandExecutor runs commands with os/exec and returns combined output.
type CommandExecutor struct{}

// Run executes binary with args. A non-zero exit is returned as an error that
// includes the command's trimmed output.
func (CommandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(out.String()); detail != "" {
			return out.Bytes(), fmt.Errorf("%s %s: %w: %s", binary, strings.Join(args, " "), err, detail)
		}
		return out.Bytes(), fmt.Errorf("%s %s: %w", binary, strings.Join(args, " "), err)
	}
	return out.Bytes(), nil
}
