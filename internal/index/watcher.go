package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay is how long a watched file must be quiet before its change
// is reported. An atomic replace arrives as several events.
const debounceDelay = 200 * time.Millisecond

// ChangeCallback is called after a watched file changed on disk.
type ChangeCallback func(path string)

// Watch starts an fsnotify watcher on the directories holding files and
// calls cb with the absolute path of each watched file once its events have
// settled. Other files in those directories are ignored. It runs until ctx
// is cancelled.
//
// Files are watched through their parent directory because writers replace
// them by rename, which would drop a watch placed on the file itself.
func Watch(ctx context.Context, files []string, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	targets := make(map[string]struct{}, len(files))
	dirs := make(map[string]struct{})
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		targets[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if _, ok := dirs[dir]; ok {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = struct{}{}
	}

	logger.Info("watcher: started", slog.Int("files", len(targets)))

	pending := make(map[string]struct{})
	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	scheduleFlush := func() {
		if debounceTimer == nil {
			debounceTimer = time.NewTimer(debounceDelay)
			debounceCh = debounceTimer.C
		} else {
			debounceTimer.Reset(debounceDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-debounceCh:
			for p := range pending {
				logger.Debug("watcher: changed", slog.String("path", p))
				if cb != nil {
					cb(p)
				}
			}
			pending = make(map[string]struct{})

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(ev.Name)
			if _, watched := targets[name]; !watched {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[name] = struct{}{}
			scheduleFlush()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
