package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type changeLog struct {
	mu    sync.Mutex
	paths []string
}

func (c *changeLog) record(p string) {
	c.mu.Lock()
	c.paths = append(c.paths, p)
	c.mu.Unlock()
}

func (c *changeLog) count(p string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, got := range c.paths {
		if got == p {
			n++
		}
	}
	return n
}

func startWatch(t *testing.T, files []string, cb ChangeCallback) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := Watch(ctx, files, logger, cb); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_WriteReported(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "members.ts")
	_ = os.WriteFile(target, []byte("v1"), 0o644)

	var log changeLog
	startWatch(t, []string{target}, log.record)

	_ = os.WriteFile(target, []byte("v2"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.count(target) == 1
	}, "write to watched file not reported")
}

func TestWatcher_AtomicReplaceReported(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "submissions.json")
	_ = os.WriteFile(target, []byte("[]"), 0o644)

	var log changeLog
	startWatch(t, []string{target}, log.record)

	tmp := filepath.Join(dir, ".webring-tmp-1")
	_ = os.WriteFile(tmp, []byte(`[{"id":"a"}]`), 0o644)
	_ = os.Rename(tmp, target)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.count(target) >= 1
	}, "atomic replace of watched file not reported")
}

func TestWatcher_BurstDebounced(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "members.ts")
	_ = os.WriteFile(target, []byte("v0"), 0o644)

	var log changeLog
	startWatch(t, []string{target}, log.record)

	for i := 0; i < 5; i++ {
		_ = os.WriteFile(target, []byte{byte('a' + i)}, 0o644)
		time.Sleep(10 * time.Millisecond)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.count(target) >= 1
	}, "burst not reported")
	time.Sleep(2 * debounceDelay)
	if n := log.count(target); n != 1 {
		t.Errorf("callbacks = %d, want 1 for a debounced burst", n)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "members.ts")
	_ = os.WriteFile(target, []byte("v1"), 0o644)

	var log changeLog
	startWatch(t, []string{target}, log.record)

	_ = os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644)
	time.Sleep(3 * debounceDelay)

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.paths) != 0 {
		t.Errorf("unexpected callbacks: %v", log.paths)
	}
}

func TestWatcher_MissingDirFails(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	err := Watch(context.Background(), []string{filepath.Join(t.TempDir(), "nope", "members.ts")}, logger, nil)
	if err == nil {
		t.Fatal("expected error watching a missing directory")
	}
}
