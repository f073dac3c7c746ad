package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dynpower/internal/power"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// ErrNoState reports an empty store.
var ErrNoState = errors.New("no saved state")

// Record is the persisted last-known decision.
type Record struct {
	State  power.DaemonState
	Reason string
	RunID  string
	Saved  time.Time
}

// Store persists the last-known state.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state database path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenReadOnly opens an existing database without creating or migrating it.
func OpenReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat state database: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragma: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the stored record.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.Saved.IsZero() {
		rec.Saved = time.Now()
	}
	st := rec.State
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO last_state (
            id, active_profile, threshold_low, threshold_high, last_updated, last_cycle,
            apply_state, apply_attempts, power_source, decision_source, version, saved_at,
            decision_reason, run_id
        ) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            active_profile = excluded.active_profile,
            threshold_low = excluded.threshold_low,
            threshold_high = excluded.threshold_high,
            last_updated = excluded.last_updated,
            last_cycle = excluded.last_cycle,
            apply_state = excluded.apply_state,
            apply_attempts = excluded.apply_attempts,
            power_source = excluded.power_source,
            decision_source = excluded.decision_source,
            version = excluded.version,
            saved_at = excluded.saved_at,
            decision_reason = excluded.decision_reason,
            run_id = excluded.run_id`,
			string(st.ActiveProfile),
			st.ThresholdLow,
			st.ThresholdHigh,
			formatTime(st.LastUpdated),
			formatTime(st.LastCycle),
			string(st.ApplyState),
			st.ApplyAttempts,
			string(st.PowerSource),
			string(st.DecisionSource),
			int64(st.Version),
			formatTime(rec.Saved),
			rec.Reason,
			rec.RunID,
		)
		if err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		return nil
	})
}

// Load returns the stored record or ErrNoState.
func (s *Store) Load(ctx context.Context) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT active_profile, threshold_low, threshold_high, last_updated, last_cycle,
        apply_state, apply_attempts, power_source, decision_source, version, saved_at, decision_reason, run_id
        FROM last_state WHERE id = 1`)
	var (
		rec                                   Record
		profile, applyState, source, decision string
		lastUpdated, lastCycle, saved         string
		version                               int64
	)
	err := row.Scan(&profile, &rec.State.ThresholdLow, &rec.State.ThresholdHigh, &lastUpdated, &lastCycle,
		&applyState, &rec.State.ApplyAttempts, &source, &decision, &version, &saved, &rec.Reason, &rec.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNoState
	}
	if err != nil {
		return Record{}, fmt.Errorf("load state: %w", err)
	}
	rec.State.ActiveProfile = power.Profile(profile)
	rec.State.ApplyState = power.ApplyState(applyState)
	rec.State.PowerSource = power.PowerSource(source)
	rec.State.DecisionSource = power.DecisionSource(decision)
	rec.State.Version = uint64(version)
	rec.State.LastUpdated = parseTime(lastUpdated)
	rec.State.LastCycle = parseTime(lastCycle)
	rec.Saved = parseTime(saved)
	return rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
