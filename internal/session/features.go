package session

import (
	"context"
	"slices"
	"strings"
	"time"

	"dynpower/internal/config"
	"dynpower/internal/logging"
	"dynpower/internal/power"
)

const featureTimeout = 10 * time.Second

// applyPowerFeatures runs the power-source integrations after a transition.
// Failures are logged and never stop the loop.
func (s *Session) applyPowerFeatures(ctx context.Context, cfg *config.Config, source power.PowerSource) {
	if s.exec == nil {
		return
	}
	s.setPanelOverdrive(ctx, cfg, source)

	names := make([]string, 0, len(cfg.Features.Hooks))
	for name := range cfg.Features.Hooks {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		command := cfg.Features.Hooks[name].Command(source)
		if len(command) == 0 {
			continue
		}
		s.runFeature(ctx, "hook_"+name, command, source,
			"features.hooks."+name, "hook side effect not applied")
	}
}

// setPanelOverdrive runs the configured command with 1 on AC and 0
// otherwise.
func (s *Session) setPanelOverdrive(ctx context.Context, cfg *config.Config, source power.PowerSource) {
	feature := cfg.Features.PanelOverdrive
	if !feature.Enabled || len(feature.Command) == 0 {
		return
	}
	value := "0"
	if source == power.SourceAC {
		value = "1"
	}
	command := append(slices.Clone(feature.Command), value)
	s.runFeature(ctx, "panel_overdrive", command, source,
		"features.panel_overdrive.command", "panel refresh behaviour unchanged")
}

func (s *Session) runFeature(ctx context.Context, name string, command []string, source power.PowerSource, configKey, impact string) {
	runCtx, cancel := context.WithTimeout(ctx, featureTimeout)
	defer cancel()
	output, err := s.exec.Run(runCtx, command[0], command[1:])
	if err != nil {
		logging.WarnWithContext(s.logger, "feature command failed", name+"_failed",
			logging.String("feature", name),
			logging.String("command", strings.Join(command, " ")),
			logging.Error(err),
			logging.String(logging.FieldImpact, impact),
			logging.String(logging.FieldErrorHint, "check "+configKey),
		)
		return
	}
	s.logger.Info("feature command ran",
		logging.String(logging.FieldEventType, name+"_set"),
		logging.String("feature", name),
		logging.String("command", strings.Join(command, " ")),
		logging.String(logging.FieldPowerSource, string(source)),
		logging.String("output", strings.TrimSpace(string(output))),
	)
}
