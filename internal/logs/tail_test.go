package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dynpower/internal/logs"
)

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) emit(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func waitForLines(t *testing.T, c *collector, want int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if lines := c.snapshot(); len(lines) >= want {
			return lines
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected %d lines, got %#v", want, c.snapshot())
	return nil
}

func TestTailLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dynpowerd.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	var c collector
	if err := logs.Tail(context.Background(), path, logs.TailOptions{Lines: 2}, c.emit); err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	lines := c.snapshot()
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestTailFewerLinesThanRequested(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dynpowerd.log")
	if err := os.WriteFile(path, []byte("only\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	var c collector
	if err := logs.Tail(context.Background(), path, logs.TailOptions{Lines: 10}, c.emit); err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if lines := c.snapshot(); len(lines) != 1 || lines[0] != "only" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.log")
	if err := logs.Tail(context.Background(), path, logs.TailOptions{Lines: 1}, func(string) {}); err == nil {
		t.Fatal("expected error for missing log without follow")
	}
}

func TestTailFollowPicksUpAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dynpowerd.log")
	if err := os.WriteFile(path, []byte("start\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var c collector
	done := make(chan error, 1)
	go func() {
		done <- logs.Tail(ctx, path, logs.TailOptions{Lines: 1, Follow: true, Poll: 20 * time.Millisecond}, c.emit)
	}()

	waitForLines(t, &c, 1)
	appendLine(t, path, "later")
	lines := waitForLines(t, &c, 2)
	if lines[0] != "start" || lines[1] != "later" {
		t.Fatalf("unexpected lines: %#v", lines)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("follow returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tail follow did not stop")
	}
}

func TestTailFollowReopensRepointedLog(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "dynpowerd-1.log")
	second := filepath.Join(dir, "dynpowerd-2.log")
	pointer := filepath.Join(dir, "dynpowerd.log")
	if err := os.WriteFile(first, []byte("old run\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	if err := os.Symlink(first, pointer); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var c collector
	go func() {
		_ = logs.Tail(ctx, pointer, logs.TailOptions{Lines: 1, Follow: true, Poll: 20 * time.Millisecond}, c.emit)
	}()
	waitForLines(t, &c, 1)

	if err := os.WriteFile(second, []byte("new run\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	if err := os.Remove(pointer); err != nil {
		t.Fatalf("remove pointer: %v", err)
	}
	if err := os.Symlink(second, pointer); err != nil {
		t.Fatalf("repoint: %v", err)
	}

	lines := waitForLines(t, &c, 2)
	if lines[1] != "new run" {
		t.Fatalf("expected the new run's first line, got %#v", lines)
	}
}
