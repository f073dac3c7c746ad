package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"dynpower/internal/logging"
)

const defaultReloadDebounce = 300 * time.Millisecond

// Watcher reloads a configuration file when it changes on disk and delivers
// validated snapshots. Invalid files are logged and skipped so the previous
// snapshot stays in effect.
type Watcher struct {
	path     string
	role     Role
	logger   *slog.Logger
	debounce time.Duration
	updates  chan *Config
	trigger  chan struct{}
}

// NewWatcher creates a watcher for path. Snapshots are loaded with role
// defaults.
func NewWatcher(path string, role Role, logger *slog.Logger) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		role:     role,
		logger:   logging.NewComponentLogger(logger, "config"),
		debounce: defaultReloadDebounce,
		updates:  make(chan *Config, 1),
		trigger:  make(chan struct{}, 1),
	}
}

// SetDebounce overrides the quiet period applied to bursts of file events.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Updates delivers reloaded snapshots. Only the newest pending snapshot is
// kept.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Reload requests an immediate reload, for example on SIGHUP.
func (w *Watcher) Reload() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run watches the configuration directory until ctx is canceled. Watching the
// directory rather than the file keeps working across editors that save by
// renaming a temp file over the original.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		logging.WarnWithContext(w.logger, "config directory not watched; edits require a reload signal", "config_watch_failed",
			logging.String("config_dir", dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "create the config directory or send SIGHUP after editing"),
			logging.String(logging.FieldImpact, "configuration changes are not picked up automatically"),
		)
	} else {
		w.logger.Debug("watching configuration", logging.String("config_path", w.path))
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "config watcher error", "config_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "a configuration change may be missed"),
			)
		case <-w.trigger:
			w.reload()
		case <-timerC:
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, _, exists, err := LoadFor(w.role, w.path)
	if err != nil {
		logging.WarnWithContext(w.logger, "config reload rejected; keeping previous configuration", "config_invalid",
			logging.String("config_path", w.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the file and save it again; run `dynpower config validate`"),
			logging.String(logging.FieldImpact, "previous configuration remains active"),
		)
		return
	}
	if !exists {
		w.logger.Info("config file removed; keeping previous configuration",
			logging.String(logging.FieldEventType, "config_removed"),
			logging.String("config_path", w.path),
		)
		return
	}
	select {
	case <-w.updates:
	default:
	}
	w.updates <- cfg
	w.logger.Info("configuration reloaded",
		logging.String(logging.FieldEventType, "config_reloaded"),
		logging.String("config_path", w.path),
	)
}
