package logging

import (
	"context"
	"log/slog"
	"strings"
)

// componentLevelHandler applies per-component minimum levels. The wrapped
// handler must be configured with the most verbose level in use.
type componentLevelHandler struct {
	next      slog.Handler
	base      slog.Level
	overrides map[string]slog.Level
	level     slog.Level
}

func newComponentLevelHandler(next slog.Handler, base slog.Level, raw map[string]string) slog.Handler {
	overrides := make(map[string]slog.Level, len(raw))
	for component, level := range raw {
		name := strings.TrimSpace(component)
		if name == "" {
			continue
		}
		overrides[name] = parseLevel(level)
	}
	return &componentLevelHandler{next: next, base: base, overrides: overrides, level: base}
}

func (h *componentLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.level {
		return false
	}
	return h.next.Enabled(ctx, level)
}

func (h *componentLevelHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *componentLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	level := h.level
	for _, attr := range attrs {
		if attr.Key != FieldComponent {
			continue
		}
		if override, ok := h.overrides[attr.Value.String()]; ok {
			level = override
		} else {
			level = h.base
		}
	}
	return &componentLevelHandler{
		next:      h.next.WithAttrs(attrs),
		base:      h.base,
		overrides: h.overrides,
		level:     level,
	}
}

func (h *componentLevelHandler) WithGroup(name string) slog.Handler {
	return &componentLevelHandler{
		next:      h.next.WithGroup(name),
		base:      h.base,
		overrides: h.overrides,
		level:     h.level,
	}
}
