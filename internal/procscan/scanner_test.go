package procscan_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"dynpower/internal/procscan"
)

func writeProc(t *testing.T, root, pid, comm string) {
	t.Helper()
	dir := filepath.Join(root, pid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if comm != "" {
		if err := os.WriteFile(filepath.Join(dir, "comm"), []byte(comm+"\n"), 0o644); err != nil {
			t.Fatalf("write comm: %v", err)
		}
	}
}

func TestRunningListsOwnedProcesses(t *testing.T) {
	root := t.TempDir()
	writeProc(t, root, "100", "steam")
	writeProc(t, root, "101", "ffmpeg")
	writeProc(t, root, "102", "steam")
	writeProc(t, root, "103", "")
	writeProc(t, root, "self", "ignored")
	if err := os.WriteFile(filepath.Join(root, "loadavg"), []byte("0.1"), 0o644); err != nil {
		t.Fatalf("write loadavg: %v", err)
	}

	running, err := procscan.NewForCurrentUser(root).Running(context.Background())
	if err != nil {
		t.Fatalf("Running returned error: %v", err)
	}
	if len(running) != 2 {
		t.Fatalf("expected 2 names, got %v", running)
	}
	for _, name := range []string{"steam", "ffmpeg"} {
		if _, ok := running[name]; !ok {
			t.Fatalf("expected %q in %v", name, running)
		}
	}
}

func TestRunningFiltersOtherUsers(t *testing.T) {
	root := t.TempDir()
	writeProc(t, root, "200", "steam")

	running, err := procscan.New(root, os.Getuid()+1).Running(context.Background())
	if err != nil {
		t.Fatalf("Running returned error: %v", err)
	}
	if len(running) != 0 {
		t.Fatalf("expected processes owned by other users to be skipped, got %v", running)
	}
}

func TestRunningMissingRoot(t *testing.T) {
	if _, err := procscan.New(filepath.Join(t.TempDir(), "absent"), 0).Running(context.Background()); err == nil {
		t.Fatal("expected error for missing proc root")
	}
}

func TestRunningHonorsContext(t *testing.T) {
	root := t.TempDir()
	writeProc(t, root, "1", "init")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := procscan.NewForCurrentUser(root).Running(ctx); err == nil {
		t.Fatal("expected canceled context error")
	}
}
