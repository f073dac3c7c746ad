package procscan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Scanner enumerates processes under a proc root.
type Scanner struct {
	procRoot string
	uid      uint32
}

// New creates a scanner for processes owned by uid.
func New(procRoot string, uid int) *Scanner {
	if strings.TrimSpace(procRoot) == "" {
		procRoot = "/proc"
	}
	return &Scanner{procRoot: procRoot, uid: uint32(uid)}
}

// NewForCurrentUser scans processes owned by the calling user.
func NewForCurrentUser(procRoot string) *Scanner {
	return New(procRoot, os.Getuid())
}

// UID reports which owner the scanner filters on.
func (s *Scanner) UID() int {
	return int(s.uid)
}

// Running returns the set of command names. Processes that exit while the
// scan is in progress are skipped.
func (s *Scanner) Running(ctx context.Context) (map[string]struct{}, error) {
	entries, err := os.ReadDir(s.procRoot)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.procRoot, err)
	}
	running := make(map[string]struct{})
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(entry.Name()); err != nil {
			continue
		}
		dir := filepath.Join(s.procRoot, entry.Name())
		var st unix.Stat_t
		if err := unix.Stat(dir, &st); err != nil || st.Uid != s.uid {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, "comm"))
		if err != nil {
			continue
		}
		if name := strings.TrimSpace(string(data)); name != "" {
			running[name] = struct{}{}
		}
	}
	return running, nil
}
